package web

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/database"
)

//go:embed all:static
var staticFiles embed.FS

// Server exposes the snapshot history over HTTP and live packet/snapshot
// batches over a websocket, backed by the Registry Manager's periodic
// publications (§6 "External interfaces").
type Server struct {
	db      *database.DB
	port    int
	server  *http.Server
	logger  *log.Logger
	version string
	hub     *Hub
}

// NewServer creates a new web server instance. db may be nil when history
// persistence is disabled; the live websocket stream still works.
func NewServer(db *database.DB, port int, logger *log.Logger, version string) *Server {
	hub := NewHub(logger)
	go hub.Run()

	return &Server{
		db:      db,
		port:    port,
		logger:  logger,
		version: version,
		hub:     hub,
	}
}

// Hub exposes the server's event hub so the analyzer's onSnapshot/
// onPacketBatch callbacks can push live data to connected clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the web server.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/apps", s.handleApps)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/top-apps", s.handleTopApps)
	mux.HandleFunc("/api/traffic-timeline", s.handleTrafficTimeline)
	mux.HandleFunc("/api/ws", s.hub.ServeWs)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create static file system: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.loggingMiddleware(corsMiddleware(mux)),
	}

	s.logger.Info("Starting web server", "port", s.port, "url", fmt.Sprintf("http://localhost:%d", s.port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		duration := time.Since(start)

		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.logger.Info("API request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"status", lrw.statusCode,
				"duration", duration.Round(time.Microsecond),
			)
		}
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for WebSocket support.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := lrw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("ResponseWriter does not implement http.Hijacker")
}

// AppsResponse is the paginated application-usage-history response.
type AppsResponse struct {
	Apps       []database.AppUsageSnapshot `json:"apps"`
	Total      int64                       `json:"total"`
	Page       int                         `json:"page"`
	PageSize   int                         `json:"pageSize"`
	TotalPages int                         `json:"totalPages"`
}

// handleApps returns paginated and filtered application usage rows.
func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "history persistence disabled", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(query.Get("pageSize"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	appID := query.Get("appId")
	since := query.Get("since")

	dbQuery := s.db.Model(&database.AppUsageSnapshot{})
	if appID != "" {
		dbQuery = dbQuery.Where("app_id = ?", appID)
	}
	if since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			dbQuery = dbQuery.Where("timestamp_ms >= ?", t.UnixMilli())
		}
	}

	var total int64
	dbQuery.Count(&total)

	var rows []database.AppUsageSnapshot
	offset := (page - 1) * pageSize
	dbQuery.Order("timestamp_ms DESC").Limit(pageSize).Offset(offset).Find(&rows)

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	response := AppsResponse{
		Apps:       rows,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// StatsResponse represents history store statistics.
type StatsResponse struct {
	TotalRows int        `json:"totalRows"`
	Oldest    *time.Time `json:"oldest,omitempty"`
	Newest    *time.Time `json:"newest,omitempty"`
}

// handleStats returns history store statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "history persistence disabled", http.StatusServiceUnavailable)
		return
	}

	var total int64
	s.db.Model(&database.AppUsageSnapshot{}).Count(&total)

	var oldest, newest database.AppUsageSnapshot
	s.db.Model(&database.AppUsageSnapshot{}).Order("timestamp_ms ASC").First(&oldest)
	s.db.Model(&database.AppUsageSnapshot{}).Order("timestamp_ms DESC").First(&newest)

	response := StatsResponse{TotalRows: int(total)}
	if oldest.ID != 0 {
		t := time.UnixMilli(oldest.TimestampMs)
		response.Oldest = &t
	}
	if newest.ID != 0 {
		t := time.UnixMilli(newest.TimestampMs)
		response.Newest = &t
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// VersionResponse represents version information.
type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	response := VersionResponse{Version: s.version}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// TopAppEntry represents a single application's rollup for the top-apps response.
type TopAppEntry struct {
	AppID        string `json:"appId"`
	DisplayName  string `json:"displayName"`
	TotalBytes   int64  `json:"totalBytes"`
	TotalPackets int64  `json:"totalPackets"`
}

// TopAppsResponse represents the top-apps response.
type TopAppsResponse struct {
	Apps   []TopAppEntry `json:"apps"`
	Metric string        `json:"metric"`
}

// handleTopApps returns top applications by traffic or packet count.
func (s *Server) handleTopApps(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "history persistence disabled", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 10
	}

	metric := query.Get("metric")
	orderCol := "total_bytes"
	if metric != "traffic" {
		metric = "packets"
		orderCol = "total_packets"
	} else {
		metric = "traffic"
	}

	type rollup struct {
		AppID        string
		AppDisplayName string
		TotalBytes   int64
		TotalPackets int64
	}
	var results []rollup
	s.db.Model(&database.AppUsageSnapshot{}).
		Select("app_id, app_display_name, COALESCE(SUM(total_bytes),0) as total_bytes, COALESCE(SUM(total_packets),0) as total_packets").
		Group("app_id").
		Order(orderCol + " DESC").
		Limit(limit).
		Scan(&results)

	apps := make([]TopAppEntry, 0, len(results))
	for _, r := range results {
		apps = append(apps, TopAppEntry{
			AppID:        r.AppID,
			DisplayName:  r.AppDisplayName,
			TotalBytes:   r.TotalBytes,
			TotalPackets: r.TotalPackets,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TopAppsResponse{Apps: apps, Metric: metric})
}

// TrafficDataPoint represents a single time-series data point.
type TrafficDataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	BytesIn   int64     `json:"bytesIn"`
	BytesOut  int64     `json:"bytesOut"`
	Packets   int64     `json:"packets"`
}

// TrafficTimelineResponse represents the traffic timeline response.
type TrafficTimelineResponse struct {
	Data       []TrafficDataPoint `json:"data"`
	StartTime  time.Time          `json:"startTime"`
	EndTime    time.Time          `json:"endTime"`
	BucketSize string             `json:"bucketSize"`
	TotalIn    int64              `json:"totalIn"`
	TotalOut   int64              `json:"totalOut"`
}

// handleTrafficTimeline returns time-series global traffic data from
// GlobalUsageSnapshot rows.
func (s *Server) handleTrafficTimeline(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "history persistence disabled", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	now := time.Now()
	var startTime, endTime time.Time

	if start := query.Get("start"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			startTime = t
		}
	}
	if end := query.Get("end"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = t
		}
	}
	if startTime.IsZero() {
		startTime = now.Add(-24 * time.Hour)
	}
	if endTime.IsZero() {
		endTime = now
	}
	if endTime.Before(startTime) {
		startTime, endTime = endTime, startTime
	}

	duration := endTime.Sub(startTime)
	var bucketSize string
	var bucketDuration time.Duration
	var sqlFormat string

	switch {
	case duration <= 4*time.Hour:
		bucketSize, bucketDuration, sqlFormat = "5min", 5*time.Minute, "%Y-%m-%d %H:%M"
	case duration <= 24*time.Hour:
		bucketSize, bucketDuration, sqlFormat = "30min", 30*time.Minute, "%Y-%m-%d %H:%M"
	case duration <= 7*24*time.Hour:
		bucketSize, bucketDuration, sqlFormat = "2hour", 2*time.Hour, "%Y-%m-%d %H:00"
	case duration <= 30*24*time.Hour:
		bucketSize, bucketDuration, sqlFormat = "6hour", 6*time.Hour, "%Y-%m-%d %H:00"
	default:
		bucketSize, bucketDuration, sqlFormat = "1day", 24*time.Hour, "%Y-%m-%d"
	}

	type bucketData struct {
		Bucket   string
		BytesIn  int64
		BytesOut int64
		Packets  int64
	}
	var buckets []bucketData
	s.db.Model(&database.GlobalUsageSnapshot{}).
		Select(`strftime('`+sqlFormat+`', datetime(timestamp_ms/1000, 'unixepoch')) as bucket,
			COALESCE(SUM(inbound_bytes), 0) as bytes_in,
			COALESCE(SUM(outbound_bytes), 0) as bytes_out,
			COALESCE(SUM(total_packets), 0) as packets`).
		Where("timestamp_ms >= ? AND timestamp_ms <= ?", startTime.UnixMilli(), endTime.UnixMilli()).
		Group("bucket").
		Order("bucket ASC").
		Scan(&buckets)

	layout := "2006-01-02 15:04"
	if sqlFormat == "%Y-%m-%d %H:00" {
		layout = "2006-01-02 15:00"
	} else if sqlFormat == "%Y-%m-%d" {
		layout = "2006-01-02"
	}

	data := make([]TrafficDataPoint, 0, len(buckets))
	var totalIn, totalOut int64
	for _, b := range buckets {
		ts, err := time.Parse(layout, b.Bucket)
		if err != nil {
			continue
		}
		data = append(data, TrafficDataPoint{Timestamp: ts, BytesIn: b.BytesIn, BytesOut: b.BytesOut, Packets: b.Packets})
		totalIn += b.BytesIn
		totalOut += b.BytesOut
	}

	response := TrafficTimelineResponse{
		Data:       fillTimeGaps(data, startTime, endTime, bucketDuration),
		StartTime:  startTime,
		EndTime:    endTime,
		BucketSize: bucketSize,
		TotalIn:    totalIn,
		TotalOut:   totalOut,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// fillTimeGaps fills in missing time buckets with zero values.
func fillTimeGaps(data []TrafficDataPoint, start, end time.Time, bucketDuration time.Duration) []TrafficDataPoint {
	if len(data) == 0 {
		return data
	}

	dataMap := make(map[int64]TrafficDataPoint)
	for _, d := range data {
		bucket := d.Timestamp.Truncate(bucketDuration).Unix()
		dataMap[bucket] = d
	}

	var result []TrafficDataPoint
	current := start.Truncate(bucketDuration)
	for current.Before(end) || current.Equal(end) {
		bucket := current.Unix()
		if dp, exists := dataMap[bucket]; exists {
			result = append(result, dp)
		} else {
			result = append(result, TrafficDataPoint{Timestamp: current})
		}
		current = current.Add(bucketDuration)
		if len(result) > 1000 {
			break
		}
	}

	return result
}
