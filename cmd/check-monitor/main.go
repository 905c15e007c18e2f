package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./auraflow.db"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	fmt.Println("🔍 Stress Monitor State")
	fmt.Println("=======================")

	var interval, maxItems int
	var autoTest, manualMode bool
	err = db.QueryRow(`
		SELECT test_interval_minutes, max_history_items, auto_test_enabled, manual_stress_mode_enabled
		FROM monitoring_config WHERE id = 1`).Scan(&interval, &maxItems, &autoTest, &manualMode)
	if err != nil {
		fmt.Println("⚠️  No monitoring config found (monitor not yet started)")
	} else {
		fmt.Println("⚙️  Config:")
		fmt.Printf("   - Test interval: %d min\n", interval)
		fmt.Printf("   - History cap: %d\n", maxItems)
		fmt.Printf("   - Auto test: %v\n", autoTest)
		fmt.Printf("   - Manual stress mode: %v\n", manualMode)
	}

	var lastTS int64
	var lastResult sql.NullString
	err = db.QueryRow(`SELECT last_test_timestamp, last_result FROM monitoring_state WHERE id = 1`).
		Scan(&lastTS, &lastResult)
	if err != nil || lastTS == 0 {
		fmt.Println("\n📋 No stress test recorded yet")
	} else {
		fmt.Printf("\n🕐 Last test: %s\n", time.UnixMilli(lastTS).Format("Jan 2, 2006 15:04:05"))
		if lastResult.Valid && lastResult.String != "" {
			var result map[string]any
			if err := json.Unmarshal([]byte(lastResult.String), &result); err == nil {
				fmt.Printf("   - Dominant expression: %v\n", result["dominant_expression"])
				fmt.Printf("   - Stress level: %v\n", result["stress_level"])
				fmt.Printf("   - Stressed: %v\n", result["is_stressed"])
			}
		}
	}

	var historyCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM stress_history`).Scan(&historyCount); err != nil {
		fmt.Println("\n❌ No stress_history table found")
		return
	}
	fmt.Printf("\n📊 History entries: %d\n", historyCount)

	rows, err := db.Query(`
		SELECT stress_level, dominant_expression, timestamp
		FROM stress_history
		ORDER BY timestamp DESC, seq DESC
		LIMIT 5`)
	if err != nil {
		log.Fatal("Failed to query history:", err)
	}
	defer rows.Close()

	shown := 0
	for rows.Next() {
		var level int
		var expression string
		var ts int64

		if err := rows.Scan(&level, &expression, &ts); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}

		shown++
		marker := "🙂"
		if level == 100 {
			marker = "😰"
		}
		fmt.Printf("   %s %s — %s (level %d)\n",
			marker, time.UnixMilli(ts).Format("Jan 2 15:04"), expression, level)
	}

	if shown == 0 {
		fmt.Println("   No entries yet. The monitor records one per completed stress test.")
	}
}
