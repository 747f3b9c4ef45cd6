// Package blockfeed subscribes to a Bitcoin Core node's ZMQ hashblock
// feed, the correlation signal that tells the daemon when a mined block
// has just changed the mempool (spec.md §4.2/§6).
package blockfeed

import (
	"fmt"
	"log"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// Config is the ZMQ subscriber config, read from the zmq section of the
// daemon's yaml config.
type Config struct {
	Addr string `yaml:"addr"` // e.g. "tcp://127.0.0.1:28332"

	// MaxReconnects bounds the number of consecutive reconnect attempts
	// before giving up; 0 means unbounded.
	MaxReconnects int `yaml:"maxReconnects"`

	// ReconnectBackoff is the delay between reconnect attempts. Zero
	// defaults to 20s, per spec.md §7's retry policy.
	ReconnectBackoff time.Duration `yaml:"reconnectBackoff"`
}

const defaultReconnectBackoff = 20 * time.Second

// Feed subscribes to hashblock and republishes the new block hash, hex
// encoded, on its output channel. It reconnects on receive error with the
// configured backoff (default 20s), per spec.md §7's retry policy.
type Feed struct {
	cfg    Config
	logger *log.Logger

	hashes chan string
	open   chan struct{}
	done   chan struct{}
}

// New returns a Feed that has not yet started subscribing. A nil logger
// defaults to log.Default.
func New(cfg Config, logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = defaultReconnectBackoff
	}
	return &Feed{
		cfg:    cfg,
		logger: logger,
		hashes: make(chan string, 1),
		open:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Hashes returns the channel of newly-mined block hashes, hex encoded.
func (f *Feed) Hashes() <-chan string {
	return f.hashes
}

// Open closes once the first successful subscribe completes — the
// observability signal spec.md §6 calls for.
func (f *Feed) Open() <-chan struct{} {
	return f.open
}

// Stop tears down the subscriber goroutine.
func (f *Feed) Stop() {
	close(f.done)
}

// Run connects and reads hashblock messages until Stop is called or the
// bounded retry count is exhausted, in which case it returns a terminal
// error. Run is meant to be called in its own goroutine.
func (f *Feed) Run() error {
	attempts := 0
	opened := false

	for {
		select {
		case <-f.done:
			return nil
		default:
		}

		sub, err := f.connect()
		if err != nil {
			attempts++
			f.logger.Printf("[DEBUG] blockfeed: connect failed (attempt %d): %v", attempts, err)
			if f.cfg.MaxReconnects > 0 && attempts >= f.cfg.MaxReconnects {
				return fmt.Errorf("blockfeed: giving up after %d attempts: %w", attempts, err)
			}
			if !f.sleepOrDone(f.cfg.ReconnectBackoff) {
				return nil
			}
			continue
		}

		if !opened {
			close(f.open)
			opened = true
		}
		attempts = 0

		err = f.recvLoop(sub)
		sub.Close()
		if err == nil {
			return nil // Stop was called.
		}

		attempts++
		f.logger.Printf("[DEBUG] blockfeed: recv failed (attempt %d): %v", attempts, err)
		if f.cfg.MaxReconnects > 0 && attempts >= f.cfg.MaxReconnects {
			return fmt.Errorf("blockfeed: giving up after %d attempts: %w", attempts, err)
		}
		if !f.sleepOrDone(f.cfg.ReconnectBackoff) {
			return nil
		}
	}
}

func (f *Feed) connect() (*zmq.Socket, error) {
	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, err
	}
	if err := sub.SetSubscribe("hashblock"); err != nil {
		sub.Close()
		return nil, err
	}
	if err := sub.Connect(f.cfg.Addr); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

func (f *Feed) recvLoop(sub *zmq.Socket) error {
	for {
		select {
		case <-f.done:
			return nil
		default:
		}

		parts, err := sub.RecvMessageBytes(0)
		if err != nil {
			return err
		}
		if len(parts) < 2 {
			f.logger.Printf("[DEBUG] blockfeed: malformed message, %d parts", len(parts))
			continue
		}

		hash := fmt.Sprintf("%x", parts[1])
		select {
		case f.hashes <- hash:
		default:
			// A consumer that's behind only needs the latest hash.
			select {
			case <-f.hashes:
			default:
			}
			f.hashes <- hash
		}
	}
}

func (f *Feed) sleepOrDone(d time.Duration) bool {
	select {
	case <-f.done:
		return false
	case <-time.After(d):
		return true
	}
}
