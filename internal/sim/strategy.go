package sim

import (
	"github.com/rs/zerolog"

	"barsim/internal/broker"
	"barsim/internal/bus"
)

// strategy is the user-tier adapter between the step action and order
// submission. It runs after every system BAR listener, so the ledger's
// marks are fresh when the orders enter the book.
type strategy struct {
	broker *broker.Broker
	logger zerolog.Logger

	// first fatal submission error of the current step
	err error
}

func newStrategy(b *broker.Broker, logger zerolog.Logger) *strategy {
	return &strategy{broker: b, logger: logger}
}

func (st *strategy) register(b *bus.Bus) {
	b.SubscribeUser(bus.KindBar, func(ev bus.Event) bool {
		be := ev.(bus.BarEvent)
		for _, o := range be.Action {
			if o == nil {
				continue
			}
			if err := st.broker.SubmitOrder(o); err != nil {
				st.logger.Error().Err(err).Uint64("order_id", o.ID()).Msg("order submission failed")
				if st.err == nil {
					st.err = err
				}
			}
		}
		return false
	})
}

// takeErr returns and clears the step's fatal error.
func (st *strategy) takeErr() error {
	err := st.err
	st.err = nil
	return err
}
