package status

import (
	"espmonitor/network"
	"espmonitor/session"
)

// Snapshot is the combined view served by GET /status
type Snapshot struct {
	Attached         bool          `json:"attached"`
	NetworkConnected bool          `json:"network_connected"`
	MACAddress       *string       `json:"mac_address"` // null until a router call is confirmed
	State            session.State `json:"state"`
	Port             string        `json:"port,omitempty"`
	BaudRate         int           `json:"baudrate,omitempty"`
	Generation       uint64        `json:"generation"`
	LinesRead        int64         `json:"lines_read"`
	LastError        string        `json:"last_error,omitempty"`
	Subscribers      int           `json:"subscribers"`
}

// SessionSource is the part of the session manager the aggregator reads
type SessionSource interface {
	Info() session.Info
}

// NetworkSource is the part of the network controller the aggregator reads
type NetworkSource interface {
	State() network.State
}

// SubscriberCounter reports live viewers
type SubscriberCounter interface {
	Count() int
}

// Aggregator merges session and network state. It holds no state itself.
type Aggregator struct {
	session     SessionSource
	network     NetworkSource
	subscribers SubscriberCounter
}

// NewAggregator creates an Aggregator. subscribers may be nil.
func NewAggregator(s SessionSource, n NetworkSource, subscribers SubscriberCounter) *Aggregator {
	return &Aggregator{session: s, network: n, subscribers: subscribers}
}

// Snapshot reads the current state. It never blocks on I/O and never fails.
func (a *Aggregator) Snapshot() Snapshot {
	info := a.session.Info()
	netState := a.network.State()

	snap := Snapshot{
		Attached:         info.State != session.StateDetached,
		NetworkConnected: netState.Connected,
		State:            info.State,
		Port:             info.Port,
		BaudRate:         info.BaudRate,
		Generation:       info.Generation,
		LinesRead:        info.LinesRead,
	}
	if netState.LastKnownMAC != "" {
		mac := netState.LastKnownMAC
		snap.MACAddress = &mac
	}
	if info.LastError != nil {
		snap.LastError = info.LastError.Error()
	}
	if a.subscribers != nil {
		snap.Subscribers = a.subscribers.Count()
	}
	return snap
}
