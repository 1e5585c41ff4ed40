package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"trawler/internal/storage"
)

const itemColumns = "id, external_id, url, subscription_id, title, published_at, status, priority, scheduled_for, processing_started_at, processing_completed_at, attempts, max_attempts, error_message, error_history, results_found, result_ref, discovered_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id             int64
		externalID     string
		rawURL         string
		subscriptionID sql.NullString
		title          sql.NullString
		publishedRaw   sql.NullString
		statusStr      string
		priority       int
		scheduledRaw   string
		startedRaw     sql.NullString
		completedRaw   sql.NullString
		attempts       int
		maxAttempts    int
		errorMessage   sql.NullString
		errorHistory   sql.NullString
		resultsFound   int
		resultRef      sql.NullString
		discoveredRaw  string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&externalID,
		&rawURL,
		&subscriptionID,
		&title,
		&publishedRaw,
		&statusStr,
		&priority,
		&scheduledRaw,
		&startedRaw,
		&completedRaw,
		&attempts,
		&maxAttempts,
		&errorMessage,
		&errorHistory,
		&resultsFound,
		&resultRef,
		&discoveredRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	status, ok := ParseStatus(statusStr)
	if !ok {
		// An unknown status means the database was written by code this
		// build does not understand; surface it instead of guessing.
		return nil, fmt.Errorf("unrecognized queue status %q for item %d", statusStr, id)
	}

	item := &Item{
		ID:             id,
		ExternalID:     externalID,
		URL:            rawURL,
		SubscriptionID: subscriptionID.String,
		Title:          title.String,
		Status:         status,
		Priority:       priority,
		Attempts:       attempts,
		MaxAttempts:    maxAttempts,
		ErrorMessage:   errorMessage.String,
		ResultsFound:   resultsFound,
		ResultRef:      resultRef.String,
	}

	if publishedRaw.Valid {
		if t, err := storage.ParseTime(publishedRaw.String); err == nil {
			item.PublishedAt = &t
		}
	}
	if scheduled, err := storage.ParseTime(scheduledRaw); err == nil {
		item.ScheduledFor = scheduled
	}
	if startedRaw.Valid {
		if t, err := storage.ParseTime(startedRaw.String); err == nil {
			item.ProcessingStartedAt = &t
		}
	}
	if completedRaw.Valid {
		if t, err := storage.ParseTime(completedRaw.String); err == nil {
			item.ProcessingCompletedAt = &t
		}
	}
	if discovered, err := storage.ParseTime(discoveredRaw); err == nil {
		item.DiscoveredAt = discovered
	}
	if updated, err := storage.ParseTime(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}

	if errorHistory.Valid && errorHistory.String != "" {
		if err := json.Unmarshal([]byte(errorHistory.String), &item.ErrorHistory); err != nil {
			return nil, fmt.Errorf("decode error history for item %d: %w", id, err)
		}
	}

	return item, nil
}

func encodeHistory(history []ErrorEntry) (any, error) {
	if len(history) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode error history: %w", err)
	}
	return string(data), nil
}
