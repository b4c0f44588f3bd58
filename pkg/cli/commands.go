// Package cli implements the privacyradar CLI's non-daemon commands:
// generating an HTML usage report from the snapshot history, and
// compacting it (the teacher's report/compact command pair, rehomed onto
// the registry-snapshot schema instead of raw packet events).
package cli

import (
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/database"
)

// RunReport opens the snapshot-history database, pulls the store's row
// statistics and the top applications since the given duration, and
// renders an HTML report to outputPath.
func RunReport(dbPath, outputPath, since string) error {
	sinceDuration, err := parseDuration(since)
	if err != nil {
		return fmt.Errorf("invalid --since duration: %w", err)
	}
	sinceTime := time.Now().Add(-sinceDuration)

	reader, err := database.NewReportReader(dbPath)
	if err != nil {
		return fmt.Errorf("open report reader: %w", err)
	}
	defer reader.Close()

	stats, err := reader.Stats()
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	topApps, err := reader.TopApps(sinceTime, 20)
	if err != nil {
		return fmt.Errorf("read top apps: %w", err)
	}

	data := struct {
		GeneratedAt string
		Since       string
		Stats       database.DatabaseStats
		TopApps     []database.AppUsageSnapshot
	}{
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Since:       since,
		Stats:       stats,
		TopApps:     topApps,
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatBytes": database.FormatBytes,
	}).Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("parse report template: %w", err)
	}

	return tmpl.Execute(f, data)
}

// RunCompact opens the snapshot-history database and rolls rows older
// than olderThan into hourly summaries, logging the result.
func RunCompact(dbPath, olderThan string, dryRun bool) error {
	olderThanDuration, err := parseDuration(olderThan)
	if err != nil {
		return fmt.Errorf("invalid --older-than duration: %w", err)
	}
	cutoff := time.Now().Add(-olderThanDuration)

	db, err := database.New(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if dryRun {
		var appRows, globalRows int64
		db.Model(&database.AppUsageSnapshot{}).Where("timestamp_ms < ? AND compacted = ?", cutoff.UnixMilli(), false).Count(&appRows)
		db.Model(&database.GlobalUsageSnapshot{}).Where("timestamp_ms < ? AND compacted = ?", cutoff.UnixMilli(), false).Count(&globalRows)
		fmt.Printf("Compaction preview (dry run): %d app rows, %d interface rows older than %s would be rolled up\n",
			appRows, globalRows, cutoff.Format("2006-01-02 15:04:05"))
		return nil
	}

	stats, err := db.Compact(cutoff)
	if err != nil {
		return err
	}

	log.Info("compaction complete",
		"app_rows_compacted", stats.AppRowsCompacted,
		"global_rows_compacted", stats.GlobalRowsCompacted,
		"rows_removed", stats.TotalRowsRemoved,
		"rows_created", stats.TotalRowsCreated,
		"total_bytes", database.FormatBytes(stats.TotalBytesInDB),
	)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := 0
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>PrivacyRadar Report</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #0f0f0f; color: #e0e0e0; padding: 20px; }
        .container { max-width: 1000px; margin: 0 auto; }
        h1 { color: #00ff88; margin-bottom: 10px; }
        h2 { color: #00ccff; margin: 30px 0 15px; border-bottom: 1px solid #333; padding-bottom: 10px; }
        .meta { color: #888; margin-bottom: 30px; }
        table { width: 100%; border-collapse: collapse; background: #1a1a1a; border-radius: 8px; overflow: hidden; }
        th, td { padding: 12px; text-align: left; border-bottom: 1px solid #333; }
        th { background: #252525; color: #00ccff; font-weight: 600; }
        tr:hover { background: #252525; }
    </style>
</head>
<body>
    <div class="container">
        <h1>PrivacyRadar Report</h1>
        <p class="meta">Generated: {{.GeneratedAt}} | Period: Last {{.Since}} | History rows: {{.Stats.TotalRows}}</p>

        <h2>Top Applications</h2>
        <table>
            <thead>
                <tr><th>Application</th><th>Packets</th><th>Bytes</th><th>Processes</th></tr>
            </thead>
            <tbody>
            {{range .TopApps}}
                <tr>
                    <td>{{.AppDisplayName}}</td>
                    <td>{{.TotalPackets}}</td>
                    <td>{{formatBytes .TotalBytes}}</td>
                    <td>{{.ProcessCount}}</td>
                </tr>
            {{else}}
                <tr><td colspan="4">No data</td></tr>
            {{end}}
            </tbody>
        </table>
    </div>
</body>
</html>
`
