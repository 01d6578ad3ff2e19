// Package transaction defines the logical unit of the protocol: a typed,
// correlated message carrying a parameter block.
//
// A Transaction is what the engine and its callers exchange. The frame
// package handles its wire framing and the fragments package splits and
// reassembles it; this package is purely the in-memory model plus the
// request/reply constructors.
package transaction

import (
	"fmt"

	"github.com/smnsjas/go-hotline/params"
)

// Type identifies what a transaction asks for or announces.
type Type uint16

// Transaction types defined by the protocol. The core routes on these
// values; their business semantics live in higher layers.
const (
	TypeReply Type = 0

	TypeError                Type = 100
	TypeGetMessages          Type = 101
	TypeNewMessage           Type = 102
	TypeOldPostNews          Type = 103
	TypeServerMessage        Type = 104
	TypeSendChat             Type = 105
	TypeChatMessage          Type = 106
	TypeLogin                Type = 107
	TypeSendInstantMessage   Type = 108
	TypeShowAgreement        Type = 109
	TypeDisconnectUser       Type = 110
	TypeDisconnectMessage    Type = 111
	TypeInviteToNewChat      Type = 112
	TypeInviteToChat         Type = 113
	TypeRejectChatInvite     Type = 114
	TypeJoinChat             Type = 115
	TypeLeaveChat            Type = 116
	TypeNotifyChatUserChange Type = 117
	TypeNotifyChatUserDelete Type = 118
	TypeNotifyChatSubject    Type = 119
	TypeSetChatSubject       Type = 120
	TypeAgreed               Type = 121
	TypeServerBanner         Type = 122

	TypeGetFileNameList Type = 200
	TypeDownloadFile    Type = 202
	TypeUploadFile      Type = 203
	TypeDeleteFile      Type = 204
	TypeNewFolder       Type = 205
	TypeGetFileInfo     Type = 206
	TypeSetFileInfo     Type = 207
	TypeMoveFile        Type = 208
	TypeMakeFileAlias   Type = 209
	TypeDownloadFolder  Type = 210
	TypeDownloadBanner  Type = 211
	TypeUploadFolder    Type = 212

	TypeGetUserNameList   Type = 300
	TypeNotifyUserChange  Type = 301
	TypeNotifyUserDelete  Type = 302
	TypeGetClientInfoText Type = 303
	TypeSetClientUserInfo Type = 304

	TypeNewUser       Type = 350
	TypeDeleteUser    Type = 351
	TypeGetUser       Type = 352
	TypeSetUser       Type = 353
	TypeUserAccess    Type = 354
	TypeUserBroadcast Type = 355

	TypeGetNewsCategoryNameList Type = 370
	TypeGetNewsArticleNameList  Type = 371

	TypeDeleteNewsItem  Type = 380
	TypeNewNewsFolder   Type = 381
	TypeNewNewsCategory Type = 382

	TypeGetNewsArticleData Type = 400

	TypePostNewsArticle   Type = 410
	TypeDeleteNewsArticle Type = 411

	TypeConnectionKeepAlive Type = 500
)

var typeNames = map[Type]string{
	TypeReply:                   "Reply",
	TypeError:                   "Error",
	TypeGetMessages:             "GetMessages",
	TypeNewMessage:              "NewMessage",
	TypeOldPostNews:             "OldPostNews",
	TypeServerMessage:           "ServerMessage",
	TypeSendChat:                "SendChat",
	TypeChatMessage:             "ChatMessage",
	TypeLogin:                   "Login",
	TypeSendInstantMessage:      "SendInstantMessage",
	TypeShowAgreement:           "ShowAgreement",
	TypeDisconnectUser:          "DisconnectUser",
	TypeDisconnectMessage:       "DisconnectMessage",
	TypeInviteToNewChat:         "InviteToNewChat",
	TypeInviteToChat:            "InviteToChat",
	TypeRejectChatInvite:        "RejectChatInvite",
	TypeJoinChat:                "JoinChat",
	TypeLeaveChat:               "LeaveChat",
	TypeNotifyChatUserChange:    "NotifyChatUserChange",
	TypeNotifyChatUserDelete:    "NotifyChatUserDelete",
	TypeNotifyChatSubject:       "NotifyChatSubject",
	TypeSetChatSubject:          "SetChatSubject",
	TypeAgreed:                  "Agreed",
	TypeServerBanner:            "ServerBanner",
	TypeGetFileNameList:         "GetFileNameList",
	TypeDownloadFile:            "DownloadFile",
	TypeUploadFile:              "UploadFile",
	TypeDeleteFile:              "DeleteFile",
	TypeNewFolder:               "NewFolder",
	TypeGetFileInfo:             "GetFileInfo",
	TypeSetFileInfo:             "SetFileInfo",
	TypeMoveFile:                "MoveFile",
	TypeMakeFileAlias:           "MakeFileAlias",
	TypeDownloadFolder:          "DownloadFolder",
	TypeDownloadBanner:          "DownloadBanner",
	TypeUploadFolder:            "UploadFolder",
	TypeGetUserNameList:         "GetUserNameList",
	TypeNotifyUserChange:        "NotifyUserChange",
	TypeNotifyUserDelete:        "NotifyUserDelete",
	TypeGetClientInfoText:       "GetClientInfoText",
	TypeSetClientUserInfo:       "SetClientUserInfo",
	TypeNewUser:                 "NewUser",
	TypeDeleteUser:              "DeleteUser",
	TypeGetUser:                 "GetUser",
	TypeSetUser:                 "SetUser",
	TypeUserAccess:              "UserAccess",
	TypeUserBroadcast:           "UserBroadcast",
	TypeGetNewsCategoryNameList: "GetNewsCategoryNameList",
	TypeGetNewsArticleNameList:  "GetNewsArticleNameList",
	TypeDeleteNewsItem:          "DeleteNewsItem",
	TypeNewNewsFolder:           "NewNewsFolder",
	TypeNewNewsCategory:         "NewNewsCategory",
	TypeGetNewsArticleData:      "GetNewsArticleData",
	TypePostNewsArticle:         "PostNewsArticle",
	TypeDeleteNewsArticle:       "DeleteNewsArticle",
	TypeConnectionKeepAlive:     "ConnectionKeepAlive",
}

// String returns the name of a known type, or the numeric value.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint16(t))
}

// Error codes used in reply headers.
const (
	// ErrorCodeOK marks a successful reply.
	ErrorCodeOK uint32 = 0
	// ErrorCodeUnsupported is sent in the automatic error reply for a
	// request type with no registered handler.
	ErrorCodeUnsupported uint32 = 1
)

// Transaction is a decoded protocol message. ID is assigned by the
// session when the transaction is sent as a request; replies echo the
// request's ID.
type Transaction struct {
	Flags     uint8
	IsReply   bool
	Type      Type
	ID        uint32
	ErrorCode uint32
	Params    params.Block
}

// NewRequest creates an outbound request. The ID is left zero and filled
// in by the session on send.
func NewRequest(t Type, p ...params.Parameter) *Transaction {
	return &Transaction{Type: t, Params: p}
}

// NewReply creates a successful reply to req, echoing its type and ID.
func NewReply(req *Transaction, p ...params.Parameter) *Transaction {
	return &Transaction{
		IsReply: true,
		Type:    req.Type,
		ID:      req.ID,
		Params:  p,
	}
}

// NewErrorReply creates an error reply to req with the given nonzero
// code. An optional message for the peer goes in the error field.
func NewErrorReply(req *Transaction, code uint32, message string) *Transaction {
	t := &Transaction{
		IsReply:   true,
		Type:      req.Type,
		ID:        req.ID,
		ErrorCode: code,
	}
	if message != "" {
		t.Params = params.Block{params.NewString(params.FieldError, message)}
	}
	return t
}

// RemoteError is a reply whose header carried a nonzero error code.
type RemoteError struct {
	Code    uint32
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %d", e.Code)
}

// Err returns nil for a successful reply, or a *RemoteError describing
// the failure, with the peer's message extracted when present.
func (t *Transaction) Err() error {
	if t.ErrorCode == ErrorCodeOK {
		return nil
	}
	msg, _ := t.Params.GetString(params.FieldError)
	return &RemoteError{Code: t.ErrorCode, Message: msg}
}
