package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/username/galculator/backend/src/config"
	"github.com/username/galculator/backend/src/database"
	"github.com/username/galculator/backend/src/logger"
	"github.com/username/galculator/backend/src/model"
	"github.com/username/galculator/backend/src/security"
	"github.com/username/galculator/backend/src/services"
	"golang.org/x/oauth2"
)

type contextKey string

const userIDContextKey contextKey = "userID"

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
var passwordRegex = regexp.MustCompile(`^.{6,}$`)

var (
	googleOauthConfig *oauth2.Config
	oauthStateString  = "random-string-for-security"
)

type UserHandler struct {
	authService *security.AuthService
	marketData  services.MarketDataService
	statsCache  *cache.Cache
}

func NewUserHandler(authService *security.AuthService, marketData services.MarketDataService, statsCache *cache.Cache) *UserHandler {
	return &UserHandler{
		authService: authService,
		marketData:  marketData,
		statsCache:  statsCache,
	}
}

func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// --- ADMIN FUNCTIONS ---

func (h *UserHandler) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			sendJSONError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		user, err := model.GetUserByID(database.DB, userID)
		if err != nil {
			sendJSONError(w, "User not found", http.StatusNotFound)
			return
		}

		isUserAdmin := false
		for _, adminEmail := range config.Cfg.AdminEmails {
			if strings.EqualFold(user.Email, adminEmail) {
				isUserAdmin = true
				break
			}
		}

		if !isUserAdmin {
			logger.L.Warn("Admin access denied for user", "userID", user.ID)
			sendJSONError(w, "Forbidden: Administrator access required", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AdminStats mirrors what the admin dashboard renders: user totals, run
// volume and the state of the local price archive.
type AdminStats struct {
	TotalUsers         int64               `json:"totalUsers"`
	TotalRuns          int64               `json:"totalRuns"`
	RunsLast7Days      int64               `json:"runsLast7Days"`
	DailyActiveUsers   int                 `json:"dailyActiveUsers"`
	MonthlyActiveUsers int                 `json:"monthlyActiveUsers"`
	ArchivedPriceRows  int64               `json:"archivedPriceRows"`
	AuthProviderStats  []ChartData         `json:"authProviderStats"`
	RunsPerDay         []TimeSeriesData    `json:"runsPerDay"`
	RecentRuns         []model.BacktestRun `json:"recentRuns"`
}

type ChartData struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type TimeSeriesData struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

const adminStatsCacheKey = "admin_stats"

func (h *UserHandler) HandleGetAdminStats(w http.ResponseWriter, r *http.Request) {
	if cached, found := h.statsCache.Get(adminStatsCacheKey); found {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cached)
		return
	}

	usage, err := model.GetUsageStats(database.DB, 20)
	if err != nil {
		logger.L.Error("Failed to collect usage stats", "error", err)
		sendJSONError(w, "Failed to collect stats", http.StatusInternalServerError)
		return
	}

	stats := AdminStats{
		TotalUsers:    usage.TotalUsers,
		TotalRuns:     usage.TotalRuns,
		RunsLast7Days: usage.RunsLast7Days,
		RecentRuns:    usage.RecentRuns,
	}

	database.DB.QueryRow("SELECT COUNT(DISTINCT user_id) FROM login_history WHERE logged_in_at > date('now', '-1 day')").Scan(&stats.DailyActiveUsers)
	database.DB.QueryRow("SELECT COUNT(DISTINCT user_id) FROM login_history WHERE logged_in_at > date('now', '-30 days')").Scan(&stats.MonthlyActiveUsers)

	if count, err := h.marketData.ArchivedPriceCount(); err == nil {
		stats.ArchivedPriceRows = count
	} else {
		logger.L.Warn("Failed to count archived prices", "error", err)
	}

	authRows, _ := database.DB.Query("SELECT auth_provider, COUNT(*) FROM users GROUP BY auth_provider")
	if authRows != nil {
		defer authRows.Close()
		for authRows.Next() {
			var name string
			var val float64
			authRows.Scan(&name, &val)
			stats.AuthProviderStats = append(stats.AuthProviderStats, ChartData{Name: name, Value: val})
		}
	}

	runRows, _ := database.DB.Query(`
		SELECT strftime('%Y-%m-%d', created_at) as day, COUNT(*)
		FROM backtest_runs
		WHERE created_at >= date('now', '-30 days')
		GROUP BY day ORDER BY day ASC
	`)
	if runRows != nil {
		defer runRows.Close()
		for runRows.Next() {
			var d TimeSeriesData
			runRows.Scan(&d.Date, &d.Count)
			stats.RunsPerDay = append(stats.RunsPerDay, d)
		}
	}

	h.statsCache.Set(adminStatsCacheKey, stats, cache.DefaultExpiration)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *UserHandler) HandleAdminClearStatsCache(w http.ResponseWriter, r *http.Request) {
	h.statsCache.Flush()
	w.WriteHeader(http.StatusNoContent)
}
