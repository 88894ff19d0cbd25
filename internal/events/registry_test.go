package events_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmars/client/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// recorder is a comparable listener that notes which instance fired.
type recorder struct {
	name string
	log  *[]string
}

func (r *recorder) HandleEvent(events.Event) {
	*r.log = append(*r.log, r.name)
}

func TestRegistry_OrderedDelivery(t *testing.T) {
	reg := events.NewRegistry(testLogger())
	var calls []string

	a := &recorder{name: "A", log: &calls}
	b := &recorder{name: "B", log: &calls}
	c := &recorder{name: "C", log: &calls}
	reg.On(events.KindGameUpdated, a)
	reg.On(events.KindGameUpdated, b)
	reg.On(events.KindGameUpdated, c)

	reg.Emit(events.GameUpdated{GameID: "g1"})

	assert.Equal(t, []string{"A", "B", "C"}, calls)
}

func TestRegistry_DuplicateRegistrationDeliversOnce(t *testing.T) {
	reg := events.NewRegistry(testLogger())
	var calls []string

	a := &recorder{name: "A", log: &calls}
	reg.On(events.KindGameUpdated, a)
	reg.On(events.KindGameUpdated, a)

	reg.Emit(events.GameUpdated{GameID: "g1"})

	assert.Equal(t, []string{"A"}, calls)
}

func TestRegistry_OffUnknownIsNoop(t *testing.T) {
	reg := events.NewRegistry(testLogger())
	var calls []string

	a := &recorder{name: "A", log: &calls}
	b := &recorder{name: "B", log: &calls}
	reg.On(events.KindGameUpdated, a)
	reg.Off(events.KindGameUpdated, b) // never registered
	reg.Off(events.KindConnectionUp, a)

	reg.Emit(events.GameUpdated{GameID: "g1"})
	assert.Equal(t, []string{"A"}, calls)
}

func TestRegistry_KindsAreIndependent(t *testing.T) {
	reg := events.NewRegistry(testLogger())
	var calls []string

	a := &recorder{name: "A", log: &calls}
	reg.On(events.KindConnectionUp, a)

	reg.Emit(events.GameUpdated{GameID: "g1"})
	assert.Empty(t, calls)

	reg.Emit(events.ConnectionUp{Attempt: 1})
	assert.Equal(t, []string{"A"}, calls)
}

func TestRegistry_UnsubscribeDuringDispatch(t *testing.T) {
	reg := events.NewRegistry(testLogger())
	var calls []string

	b := &recorder{name: "B", log: &calls}
	c := &recorder{name: "C", log: &calls}

	// A removes B while the emit is in flight. B must still see the
	// current pass, but not the next one.
	a := events.ListenerFunc(func(events.Event) {
		calls = append(calls, "A")
		reg.Off(events.KindGameUpdated, b)
	})
	reg.On(events.KindGameUpdated, a)
	reg.On(events.KindGameUpdated, b)
	reg.On(events.KindGameUpdated, c)

	reg.Emit(events.GameUpdated{GameID: "g1"})
	require.Equal(t, []string{"A", "B", "C"}, calls)

	calls = nil
	reg.Emit(events.GameUpdated{GameID: "g1"})
	assert.Equal(t, []string{"A", "C"}, calls)
}

func TestRegistry_SubscribeDuringDispatchSeesNextEmitOnly(t *testing.T) {
	reg := events.NewRegistry(testLogger())
	var calls []string

	late := &recorder{name: "late", log: &calls}
	first := events.ListenerFunc(func(events.Event) {
		calls = append(calls, "first")
		reg.On(events.KindGameUpdated, late)
	})
	reg.On(events.KindGameUpdated, first)

	reg.Emit(events.GameUpdated{GameID: "g1"})
	require.Equal(t, []string{"first"}, calls)

	calls = nil
	reg.Emit(events.GameUpdated{GameID: "g1"})
	assert.Equal(t, []string{"first", "late"}, calls)
}
