// Package cliprdr implements the client side of the clipboard redirection
// virtual channel: capability negotiation, format-list advertisement, and
// format-data exchange, keeping the local system clipboard and the remote
// session clipboard in sync.
//
// The wire encoding of channel messages belongs to the protocol engine; this
// package only deals in decoded messages, sent through the Transport port
// and received through the Handler callbacks.
package cliprdr

// ChannelName is the static virtual channel name the clipboard redirection
// extension registers under.
const ChannelName = "cliprdr"

// Well-known clipboard format identifiers (MS-RDPECLIP / Windows CF_*).
// These are the only two formats the bridge exchanges; anything else is
// advertised by the server but never requested.
const (
	FormatText        uint32 = 1  // CF_TEXT, 8-bit text with trailing NUL
	FormatUnicodeText uint32 = 13 // CF_UNICODETEXT, UTF-16LE with trailing NUL
)

// General capability flags exchanged in the clipboard capability set.
const (
	CapUseLongFormatNames uint32 = 0x0002
)

// Format is one entry in a format list: a numeric identifier and an
// optional name (only meaningful for registered formats).
type Format struct {
	ID   uint32
	Name string
}

// Transport is the client-to-server half of the clipboard channel,
// provided by the protocol engine when the channel connects.
type Transport interface {
	// SendCapabilities sends the client's general capability set.
	SendCapabilities(generalFlags uint32) error

	// SendFormatList advertises the formats the client clipboard holds.
	SendFormatList(formats []Format) error

	// SendFormatListResponse acknowledges a server format list.
	SendFormatListResponse(ok bool) error

	// SendFormatDataRequest asks the server for the data behind a format.
	SendFormatDataRequest(formatID uint32) error

	// SendFormatDataResponse answers a server data request. A failed
	// response carries no data.
	SendFormatDataResponse(ok bool, data []byte) error
}

// Handler is the server-to-client half: the engine delivers decoded server
// messages through it, on the session worker's goroutine.
type Handler interface {
	// MonitorReady signals that the channel is initialized and the client
	// may begin capability and format exchange.
	MonitorReady() error

	// ServerCapabilities reports the server's general capability flags.
	ServerCapabilities(generalFlags uint32)

	// ServerFormatList advertises the formats the server clipboard holds.
	ServerFormatList(formats []Format) error

	// ServerFormatListResponse acknowledges a client format list.
	ServerFormatListResponse(ok bool)

	// ServerFormatDataRequest asks the client for the data behind a format.
	ServerFormatDataRequest(formatID uint32) error

	// ServerFormatDataResponse answers a client data request.
	ServerFormatDataResponse(ok bool, data []byte) error

	// ServerLockClipboardData and ServerUnlockClipboardData are delayed
	// rendering hooks; the bridge acknowledges them without action.
	ServerLockClipboardData(dataID uint32)
	ServerUnlockClipboardData(dataID uint32)
}

// Channel is what the engine hands over on a channel-connected event for
// the clipboard channel: the outbound transport plus handler registration.
type Channel interface {
	Transport

	// SetHandler registers the receiver for server messages. Passing nil
	// detaches the current handler.
	SetHandler(Handler)
}
