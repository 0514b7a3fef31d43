package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ProjectID           string
	SlackBotToken       string
	SlackSigningSecret  string
	SlackAPIBaseURL     string
	SlackMaxRetries     int
	Port                string
	AnnouncerUserID     string
	AnchorHour          int
	AnchorMinute        int
	DayOfCollection     string
	DayBeforeCollection string
}

func Load() (*Config, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required but not set")
	}

	botToken := os.Getenv("SLACK_BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN environment variable is required but not set")
	}

	signingSecret := os.Getenv("SLACK_SIGNING_SECRET")
	if signingSecret == "" {
		return nil, fmt.Errorf("SLACK_SIGNING_SECRET environment variable is required but not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	announcerID := os.Getenv("ANNOUNCER_USER_ID")
	if announcerID == "" {
		// The flex-bot user the original deployment listened to.
		announcerID = "U052HV3FKL5"
	}

	anchorTime := os.Getenv("ANCHOR_TIME")
	if anchorTime == "" {
		anchorTime = "08:00"
	}
	anchorHour, anchorMinute, err := parseAnchorTime(anchorTime)
	if err != nil {
		return nil, fmt.Errorf("invalid ANCHOR_TIME %q: %w", anchorTime, err)
	}

	dayOfCollection := os.Getenv("DAY_COLLECTION")
	if dayOfCollection == "" {
		dayOfCollection = "holydays"
	}
	dayBeforeCollection := os.Getenv("EVE_COLLECTION")
	if dayBeforeCollection == "" {
		dayBeforeCollection = "prevHolydays"
	}

	maxRetries := 3
	if v := os.Getenv("SLACK_MAX_RETRIES"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SLACK_MAX_RETRIES %q: %w", v, err)
		}
		maxRetries = parsed
	}

	return &Config{
		ProjectID:           projectID,
		SlackBotToken:       botToken,
		SlackSigningSecret:  signingSecret,
		SlackAPIBaseURL:     os.Getenv("SLACK_API_BASE_URL"),
		SlackMaxRetries:     maxRetries,
		Port:                port,
		AnnouncerUserID:     announcerID,
		AnchorHour:          anchorHour,
		AnchorMinute:        anchorMinute,
		DayOfCollection:     dayOfCollection,
		DayBeforeCollection: dayBeforeCollection,
	}, nil
}

// parseAnchorTime parses "HH:MM" into hour and minute.
func parseAnchorTime(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM")
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("out of range")
	}
	return hour, minute, nil
}
