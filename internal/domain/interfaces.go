package domain

import "context"

// Radio captures BLE advertising reports. Next blocks until a report arrives
// or ctx is done.
type Radio interface {
	Next(ctx context.Context) (AdvertisementFrame, error)
	Close() error
}

// AddressFilter is implemented by radios that can restrict reports to a single
// advertiser address at the controller level.
type AddressFilter interface {
	AllowOnly(ctx context.Context, address [6]byte) error
}

// Network is the network capability owned by the connection manager.
// Connect brings the link up, Ping checks it is still usable and Send
// delivers one serialized upload request.
type Network interface {
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	Send(ctx context.Context, body []byte) error
}

// ReadingPublisher is the producer side of the reading slot. Publish reports
// whether an unconsumed reading was overwritten.
type ReadingPublisher interface {
	Publish(reading Reading) bool
}

// ReadingSource is the consumer side of the reading slot.
type ReadingSource interface {
	Ready() <-chan struct{}
	Take() (Reading, bool)
}

// Task is a long-running unit started by the supervisor.
type Task interface {
	Run(ctx context.Context) error
}
