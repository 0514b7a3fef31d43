package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/phonego-ryong/holyDayBot/internal/models"
	"github.com/phonego-ryong/holyDayBot/internal/parser"
	"github.com/phonego-ryong/holyDayBot/internal/reconciler"
)

const (
	maxBodyBytes     = 1 << 20
	signatureVersion = "v0"
	maxTimestampSkew = 5 * time.Minute

	// Processing runs detached from the HTTP request so Slack's 3-second
	// ack deadline is never at the mercy of Firestore or the Web API.
	processingTimeout = 4 * time.Minute
)

// RosterLister backs the operator roster endpoint.
type RosterLister interface {
	ListUpcoming(ctx context.Context, table models.Table, from int64, limit int) ([]models.Reservation, error)
}

// Handler is the Slack Events API surface: it authenticates requests with
// the signing secret, filters for the announcer user's messages, and hands
// parsed events to the reconciler.
type Handler struct {
	signingSecret string
	announcerID   string
	parser        *parser.Parser
	applier       reconciler.Applier
	rosters       RosterLister
	now           func() time.Time
}

func New(signingSecret, announcerID string, p *parser.Parser, a reconciler.Applier, rosters RosterLister) *Handler {
	return &Handler{
		signingSecret: signingSecret,
		announcerID:   announcerID,
		parser:        p,
		applier:       a,
		rosters:       rosters,
		now:           time.Now,
	}
}

type eventEnvelope struct {
	Type      string       `json:"type"`
	Challenge string       `json:"challenge"`
	Event     messageEvent `json:"event"`
}

type messageEvent struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := h.verifySignature(
		r.Header.Get("X-Slack-Request-Timestamp"),
		r.Header.Get("X-Slack-Signature"),
		body,
	); err != nil {
		slog.Warn("Rejected unsigned event delivery", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": envelope.Challenge})
		return
	case "event_callback":
		// Slack redelivers events it considers unacked. Reprocessing one
		// would double-append roster entries, so retries are acked and
		// dropped.
		if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" && retry != "0" {
			slog.Info("Acking Slack retry delivery without reprocessing", "retry_num", retry)
			w.WriteHeader(http.StatusOK)
			return
		}

		ev := envelope.Event
		if ev.Type != "message" || ev.User != h.announcerID {
			w.WriteHeader(http.StatusOK)
			return
		}

		go h.process(ev.Text, ev.Channel)
		w.WriteHeader(http.StatusOK)
		return
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// process runs one event's reconciliation chain. Failures are logged and the
// event is dropped; the channel never sees an error.
func (h *Handler) process(text, channel string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Panic while processing announcement", "panic", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), processingTimeout)
	defer cancel()

	a, err := h.parser.Parse(text)
	if errors.Is(err, models.ErrNotAnnouncement) {
		return
	}
	if err != nil {
		slog.Error("Failed to parse announcement, dropping event", "error", err)
		return
	}

	dayOf, dayBefore := h.parser.DayKeys(a)
	event := reconciler.Event{
		Announcement: *a,
		Channel:      channel,
		DayOfKey:     dayOf,
		DayBeforeKey: dayBefore,
		TodayKey:     h.parser.TodayKey(),
	}
	if err := h.applier.Apply(ctx, event); err != nil {
		slog.Error("Reconciliation failed, dropping event",
			"error", err, "name", a.Name, "cancel", a.Cancel)
	}
}

// verifySignature checks the Slack v0 request signature: HMAC-SHA256 of
// "v0:<timestamp>:<body>" with the signing secret, with a bounded clock skew
// window against replays.
func (h *Handler) verifySignature(timestamp, signature string, body []byte) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("bad request timestamp %q", timestamp)
	}
	if skew := h.now().Sub(time.Unix(ts, 0)); skew > maxTimestampSkew || skew < -maxTimestampSkew {
		return fmt.Errorf("request timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	fmt.Fprintf(mac, "%s:%s:%s", signatureVersion, timestamp, body)
	want := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

type rosterResponse struct {
	DayOf     []models.Reservation `json:"day_of"`
	DayBefore []models.Reservation `json:"day_before"`
}

// HandleRosters exposes the upcoming rosters of both tables for operators.
func (h *Handler) HandleRosters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	from := h.now().Unix()
	dayOf, err := h.rosters.ListUpcoming(r.Context(), models.TableDayOf, from, limit)
	if err != nil {
		slog.Error("Failed to list day-of rosters", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	dayBefore, err := h.rosters.ListUpcoming(r.Context(), models.TableDayBefore, from, limit)
	if err != nil {
		slog.Error("Failed to list day-before rosters", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rosterResponse{DayOf: dayOf, DayBefore: dayBefore})
}
