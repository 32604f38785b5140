// Package protocol defines the wire grammar shared by the name server, the
// storage servers, and the client.
//
// Frames are newline-terminated, `;`-delimited positional records:
//
//	VERB;arg1;arg2;...\n
//
// A name server response ends with the EndMarker line; a storage server
// response ends with the SSEndMarker line. There is no escaping: field
// values containing the delimiter or a newline are rejected at the edge
// (see ValidateName).
package protocol

// Response markers. Each marker terminates a response and appears on a
// line of its own.
const (
	// EndMarker terminates every name server response.
	EndMarker = "__END__"

	// SSEndMarker terminates every storage server response.
	SSEndMarker = "__SS_END__"
)

// FieldSep is the record field delimiter.
const FieldSep = ";"

// Client-facing name server verbs.
const (
	VerbRegisterClient = "REGISTER_CLIENT"
	VerbRegisterSS     = "REGISTER_SS"

	VerbListUsers      = "LIST_USERS"
	VerbView           = "VIEW"
	VerbInfo           = "INFO"
	VerbAddAccess      = "ADDACCESS"
	VerbRemAccess      = "REMACCESS"
	VerbCreate         = "CREATE"
	VerbRead           = "READ"
	VerbWrite          = "WRITE"
	VerbDelete         = "DELETE"
	VerbStream         = "STREAM"
	VerbUndo           = "UNDO"
	VerbUpdateMeta     = "UPDATE_META"
	VerbExec           = "EXEC"
	VerbCreateFolder   = "CREATEFOLDER"
	VerbViewFolder     = "VIEWFOLDER"
	VerbCheckpoint     = "CHECKPOINT"
	VerbRevert         = "REVERT"
	VerbViewCheckpoint = "VIEWCHECKPOINT"
	VerbRequestAccess  = "REQUESTACCESS"
	VerbViewRequests   = "VIEWREQUESTS"
	VerbApprove        = "APPROVE"
	VerbReject         = "REJECT"
	VerbAnnotate       = "ANNOTATE"
	VerbShowAnnotation = "SHOW_ANNOTATION"
)

// Storage server verbs. SS_READ doubles as the fetch used by the name
// server for UPDATE_META and EXEC.
const (
	SSVerbCreate         = "SS_CREATE"
	SSVerbRead           = "SS_READ"
	SSVerbStream         = "SS_STREAM"
	SSVerbDelete         = "SS_DELETE"
	SSVerbLockSentence   = "SS_LOCK_SENTENCE"
	SSVerbWriteData      = "WRITE_DATA"
	SSVerbCommitWrite    = "COMMIT_WRITE"
	SSVerbUndo           = "SS_UNDO"
	SSVerbCheckpoint     = "SS_CHECKPOINT"
	SSVerbRevert         = "SS_REVERT"
	SSVerbViewCheckpoint = "SS_VIEWCHECKPOINT"
)

// Registration acknowledgements sent by the name server.
const (
	AckClientReg = "ACK_CLIENT_REG"
	AckSSReg     = "ACK_SS_REG"
)

// Storage server acknowledgement tokens. The name server gates its side
// of every mediated transaction on the verb-specific token.
const (
	AckCreate     = "ACK_CREATE"
	AckDelete     = "ACK_DELETE"
	AckLock       = "ACK_LOCK"
	AckData       = "ACK_DATA"
	AckCommit     = "ACK_COMMIT"
	AckUndo       = "ACK_UNDO"
	AckCheckpoint = "ACK_CHECKPOINT"
	AckRevert     = "ACK_REVERT"
)

// Redirect reply prefixes. The client dials the storage server itself
// when it receives one of these.
const (
	RedirectRead   = "REDIRECT_READ"
	RedirectWrite  = "REDIRECT_WRITE"
	RedirectStream = "REDIRECT_STREAM"
)

// ErrorPrefix starts every structured error reply: ERROR;code;message.
const ErrorPrefix = "ERROR"
