// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go - Runtime-wide defaults for rings, pools and links
//
// Purpose:
//   - Compile-time defaults used when a configuration scope omits a key.
//   - Every capacity that feeds a ring or a power-of-two mask is a power of two.
//
// ⚠️ No runtime logic here - all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

// ───────────────────────────── Receive links ──────────────────────────────

const (
	// RecvCapacity is the default receive buffer size per multicast partition.
	// Sized for several milliseconds of a busy ITCH partition at line rate.
	RecvCapacity = 4 << 20

	// MaxDatagram bounds one UDP payload; a poll stops reading once less than
	// this much tail space remains.
	MaxDatagram = 64 << 10

	// SocketRecvBuffer is requested via SO_RCVBUF on multicast sockets.
	SocketRecvBuffer = 8 << 20

	// TapeCapacity is the number of datagrams in flight between the feed
	// writer and the capture loop when recording.
	TapeCapacity = 1 << 8
)

// ───────────────────────────── RCU publishing ─────────────────────────────

const (
	// DescriptorPoolCapacity bounds in-flight poll descriptors per feed. One is
	// published, one is current, the rest wait for a grace period or sit on the
	// reclaim stack. Exhaustion is a sizing bug and panics.
	DescriptorPoolCapacity = 1 << 12

	// MinFrameSize is the smallest unit a consumer peels off a receive window.
	MinFrameSize = 1
)

// ───────────────────────────── Queues ─────────────────────────────────────

const (
	// TimerQueueCapacity is the initial entry pool size for timer queues.
	TimerQueueCapacity = 1 << 10

	// RequestQueueCapacity sizes each agent → execution link request ring.
	RequestQueueCapacity = 1 << 8

	// MaxAgents caps execution link connections.
	MaxAgents = 16
)

// ───────────────────────────── Pinned loops ───────────────────────────────

const (
	// SpinBudget is the number of idle steps before a cold loop relaxes.
	SpinBudget = 224

	// HotWindowNs keeps a pinned loop in tight spin after the last useful step.
	HotWindowNs = 5_000_000_000
)
