// Package notify defines the downstream side effects of a successful
// match. The orchestrator calls these fire-and-forget: a notification or
// credit failure is logged and never rolls back a persisted match.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/foundly/foundly/internal/item"
	"github.com/foundly/foundly/internal/store"
)

// Notifier delivers match outcomes to the people involved.
type Notifier interface {
	// MatchFound tells both reporters their items were linked.
	MatchFound(ctx context.Context, rec *store.MatchRecord, lost, found *item.Item) error

	// AwardCredit credits the finder for a verified hand-back.
	AwardCredit(ctx context.Context, userID, itemID string) error
}

// LogNotifier writes notifications to the structured log. It stands in
// until a real delivery channel (email, push) is wired behind the
// interface.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) MatchFound(_ context.Context, rec *store.MatchRecord, lost, found *item.Item) error {
	n.log.WithFields(logrus.Fields{
		"module":    "notify",
		"matchId":   rec.ID,
		"lostItem":  lost.ID,
		"foundItem": found.ID,
		"score":     rec.Score,
		"lostUser":  lost.ReportedBy,
		"foundUser": found.ReportedBy,
	}).Info("match found, notifying both reporters")
	return nil
}

func (n *LogNotifier) AwardCredit(_ context.Context, userID, itemID string) error {
	n.log.WithFields(logrus.Fields{
		"module": "notify",
		"user":   userID,
		"item":   itemID,
	}).Info("crediting finder")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
