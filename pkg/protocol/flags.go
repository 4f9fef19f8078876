package protocol

// Flag values for the chat PDU set. Values 1-10 are decimal in the protocol
// description; the list response flags are conventionally written in hex.
const (
	FlagClientInit    = 1    // C→S registration: 1-byte len + handle
	FlagConfirmHandle = 2    // S→C registration accepted, empty
	FlagErrorInit     = 3    // S→C registration rejected, empty
	FlagBroadcast     = 4    // C→S / S→C broadcast: sender handle + text
	FlagDirect        = 5    // C→S / S→C direct: sender + dest list + text
	FlagErrorDest     = 7    // S→C unknown destination: 1-byte len + handle
	FlagExit          = 8    // C→S exit request, empty
	FlagExitAck       = 9    // S→C exit acknowledged, empty
	FlagListReq       = 10   // C→S list request, empty
	FlagListCount     = 0x0B // S→C list count: 4-byte big-endian
	FlagListEntry     = 0x0C // S→C one handle: 1-byte len + handle
	FlagListEnd       = 0x0D // S→C end of list, empty
)

var flagNames = map[uint8]string{
	FlagClientInit:    "CLIENT_INIT",
	FlagConfirmHandle: "CONFIRM_HANDLE",
	FlagErrorInit:     "ERROR_INIT",
	FlagBroadcast:     "BROADCAST",
	FlagDirect:        "DIRECT",
	FlagErrorDest:     "ERROR_DEST",
	FlagExit:          "EXIT",
	FlagExitAck:       "EXIT_ACK",
	FlagListReq:       "LIST_REQ",
	FlagListCount:     "LIST_COUNT",
	FlagListEntry:     "LIST_ENTRY",
	FlagListEnd:       "LIST_END",
}

// FlagName returns the symbolic name for a flag, or "UNKNOWN" for values
// outside the defined set.
func FlagName(flag uint8) string {
	if name, ok := flagNames[flag]; ok {
		return name
	}
	return "UNKNOWN"
}

// KnownFlag reports whether the value belongs to the defined flag set.
func KnownFlag(flag uint8) bool {
	_, ok := flagNames[flag]
	return ok
}
