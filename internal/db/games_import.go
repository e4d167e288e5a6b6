package db

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportError describes one rejected record.
type ImportError struct {
	Index int    `json:"index"`
	Link  string `json:"link"`
	Error string `json:"error"`
}

// ImportResult counts what UpsertGames did. Failed records never abort the
// batch.
type ImportResult struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Failed  int           `json:"failed"`
	Errors  []ImportError `json:"errors"`
}

// UpsertGames inserts or updates games keyed by link. Existing games get
// their title and topic refreshed; play counts are only set on insert.
func UpsertGames(conn *gorm.DB, records []GameRecord) (ImportResult, error) {
	result := ImportResult{Errors: []ImportError{}}
	if conn == nil {
		return result, errors.New("db connection is nil")
	}
	for i, raw := range records {
		record, err := raw.Normalize()
		if err != nil {
			result.fail(i, raw.Link, err.Error())
			continue
		}
		created, err := upsertGame(conn, record)
		if err != nil {
			result.fail(i, record.Link, err.Error())
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	return result, nil
}

func (r *ImportResult) fail(index int, link, message string) {
	r.Failed++
	r.Errors = append(r.Errors, ImportError{Index: index, Link: link, Error: message})
}

// upsertGame writes record with INSERT ... ON CONFLICT (link). The created
// flag comes from a lookup before the write.
func upsertGame(conn *gorm.DB, record GameRecord) (bool, error) {
	var existing int64
	if err := conn.Model(&Game{}).Where("link = ?", record.Link).Count(&existing).Error; err != nil {
		return false, err
	}
	game := Game{
		Title:     record.Title,
		Link:      record.Link,
		Topic:     record.Topic,
		PlayCount: record.PlayCount,
	}
	err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "link"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "topic", "updated_at"}),
	}).Create(&game).Error
	return existing == 0, err
}

// ReadGamesFile loads records from a .json or .csv file.
func ReadGamesFile(path string) ([]GameRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseGamesJSON(file)
	case ".csv":
		return ParseGamesCSV(file)
	default:
		return nil, fmt.Errorf("unsupported games file %q (want .json or .csv)", path)
	}
}

// ParseGamesJSON accepts an array of game objects. Extra fields, such as
// those present in an export, are ignored.
func ParseGamesJSON(r io.Reader) ([]GameRecord, error) {
	var records []GameRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("invalid games JSON: %w", err)
	}
	return records, nil
}

// ParseGamesCSV reads rows with a header naming at least title, link and
// topic. A playCount column is optional.
func ParseGamesCSV(r io.Reader) ([]GameRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := map[string]int{}
	for i, name := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"title", "link", "topic"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("games CSV is missing the %q column", required)
		}
	}
	cell := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var records []GameRecord
	for _, row := range rows[1:] {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		record := GameRecord{
			Title: cell(row, "title"),
			Link:  cell(row, "link"),
			Topic: cell(row, "topic"),
		}
		if raw := cell(row, "playcount"); raw != "" {
			if value, err := strconv.Atoi(raw); err == nil {
				record.PlayCount = value
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// DefaultGames is the catalog used to seed an empty database.
func DefaultGames() []GameRecord {
	return []GameRecord{
		{Title: "Wordle", Link: "https://www.nytimes.com/games/wordle/index.html", Topic: "words"},
		{Title: "Connections", Link: "https://www.nytimes.com/games/connections", Topic: "words"},
		{Title: "Strands", Link: "https://www.nytimes.com/games/strands", Topic: "words"},
		{Title: "Mini Crossword", Link: "https://minicrossword.com/", Topic: "words"},
		{Title: "Worldle", Link: "https://worldle.teuteuf.fr/", Topic: "geography"},
		{Title: "Globle", Link: "https://globle-game.com/", Topic: "geography"},
		{Title: "Framed", Link: "https://framed.wtf/", Topic: "entertainment"},
		{Title: "Gamedle", Link: "https://www.gamedle.wtf/", Topic: "gaming"},
		{Title: "Nerdle", Link: "https://nerdlegame.com/", Topic: "puzzle"},
		{Title: "Tradle", Link: "https://oec.world/en/tradle", Topic: "trivia"},
		{Title: "Birdle", Link: "https://www.birdle.org/", Topic: "nature"},
		{Title: "Foodle", Link: "https://www.foodle.fun/", Topic: "food"},
		{Title: "Poeltl", Link: "https://poeltl.nbpa.com/", Topic: "sports"},
	}
}
