package transmit

import (
	"github.com/shimaore/unicast/internal/framing"
	"github.com/shimaore/unicast/internal/metrics"
)

// Transmitter composes a framer and a sender into the flush target of a
// buncher. Each flush frames the bunch and performs exactly one send;
// nothing is retried or buffered, and sequence/timestamp state inside the
// framer advances even when the send is absorbed.
type Transmitter struct {
	framer  framing.Framer
	sender  *Sender
	metrics *metrics.Metrics
}

// NewTransmitter creates a transmitter flushing through the given framer
// and sender. metrics may be nil.
func NewTransmitter(framer framing.Framer, sender *Sender, m *metrics.Metrics) *Transmitter {
	return &Transmitter{
		framer:  framer,
		sender:  sender,
		metrics: m,
	}
}

// Flush frames one bunch and sends it, best effort
func (t *Transmitter) Flush(bunch []byte) {
	out, err := t.framer.Frame(bunch)
	if err != nil {
		// Construction failures are as silent as send failures: the
		// bunch is dropped and the audio path continues.
		t.metrics.RecordSend(0, false)
		return
	}
	sent := t.sender.Send(out)
	t.metrics.RecordSend(len(out), sent)
}

// Close releases the socket
func (t *Transmitter) Close() error {
	return t.sender.Close()
}

// Mode reports the wire format of the underlying framer
func (t *Transmitter) Mode() framing.Mode {
	return t.framer.Mode()
}

// Sender returns the underlying sender, for accounting
func (t *Transmitter) Sender() *Sender {
	return t.sender
}
