package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/messaging"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

var testNow = time.Date(2026, time.March, 3, 10, 30, 0, 0, time.UTC)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

type fakeAccounts map[string]*account.Account

func (f fakeAccounts) GetByID(_ context.Context, id string) (*account.Account, error) {
	if acc, ok := f[id]; ok {
		return acc, nil
	}
	return nil, account.ErrAccountNotFound
}

// mapEvent imitates an event decoded from the Redis bus.
type mapEvent struct {
	eventType shared.EventType
	payload   map[string]interface{}
}

func (e mapEvent) EventType() shared.EventType     { return e.eventType }
func (e mapEvent) AggregateID() string             { return "acc-1" }
func (e mapEvent) OccurredAt() time.Time           { return testNow }
func (e mapEvent) Payload() map[string]interface{} { return e.payload }

func newNotifier(sender *fakeSender) *ProgressNotifier {
	accounts := fakeAccounts{"acc-1": {ID: "acc-1", TelegramID: 279058397}}
	return NewProgressNotifier(accounts, sender, logger.Discard())
}

func TestNotifierLevelUpText(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender)

	require.NoError(t, n.Handle(shared.NewLevelUpEvent("acc-1", 2, 3, "Alpha Pup", testNow)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(279058397), sender.sent[0].chatID)
	assert.Equal(t, "🎉 Level Up!\nYou've reached level 3!\nKeep up the great work!", sender.sent[0].text)
}

func TestNotifierAchievementText(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender)

	require.NoError(t, n.Handle(shared.NewAchievementUnlockedEvent("acc-1", "First Steps", "Reach level 5", "🎯", testNow)))
	require.NoError(t, n.Handle(shared.NewAchievementUnlockedEvent("acc-1", "Plain", "No icon", "", testNow)))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "🏆 Achievement Unlocked!\n🎯 First Steps\nReach level 5", sender.sent[0].text)
	assert.Equal(t, "🏆 Achievement Unlocked!\n🏅 Plain\nNo icon", sender.sent[1].text)
}

func TestNotifierAcceptsDecodedPayload(t *testing.T) {
	text, ok := NotificationText(mapEvent{
		eventType: shared.EventLevelUp,
		payload:   map[string]interface{}{"new_level": float64(7)},
	})
	require.True(t, ok)
	assert.Contains(t, text, "level 7!")
}

func TestNotifierIgnoresOtherEvents(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender)

	require.NoError(t, n.Handle(shared.NewExperienceAwardedEvent("acc-1", 10, 10, 1, 0, testNow)))
	assert.Empty(t, sender.sent)
}

func TestNotifierUnknownAccountIsSkipped(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender)

	require.NoError(t, n.Handle(shared.NewLevelUpEvent("ghost", 1, 2, "Alpha Pup", testNow)))
	assert.Empty(t, sender.sent)
}

func TestNotifierReturnsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection reset")}
	n := newNotifier(sender)

	err := n.Handle(shared.NewLevelUpEvent("acc-1", 1, 2, "Alpha Pup", testNow))
	assert.Error(t, err)
}

type blockedError struct{}

func (blockedError) Error() string   { return "Forbidden: bot was blocked by the user" }
func (blockedError) IsBlocked() bool { return true }

func TestNotifierSkipsBlockedChats(t *testing.T) {
	sender := &fakeSender{err: fmt.Errorf("send message: %w", blockedError{})}
	n := newNotifier(sender)

	assert.NoError(t, n.Handle(shared.NewLevelUpEvent("acc-1", 1, 2, "Alpha Pup", testNow)))
}

func TestNotifierRegisteredOnBus(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender)

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: logger.Discard()})
	defer bus.Close()
	require.NoError(t, n.Register(bus))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("acc-1", 1, 2, "Alpha Pup", testNow)))
	require.NoError(t, bus.Publish(shared.NewAchievementUnlockedEvent("acc-1", "Telegram Pro", "Connect your Telegram account", "📱", testNow)))
	assert.Len(t, sender.sent, 2)
}
