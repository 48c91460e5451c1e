package model

// AccessSystem names one of the external identity systems an entitlement is mirrored into.
type AccessSystem string

const (
	AccessCommunityChat AccessSystem = "community_chat"
	AccessKnowledgeBase AccessSystem = "knowledge_base"
	AccessFileStorage   AccessSystem = "file_storage"
)

// AccessSystems lists every system in the order the orchestrator visits them.
var AccessSystems = []AccessSystem{AccessCommunityChat, AccessKnowledgeBase, AccessFileStorage}

func (a AccessSystem) Valid() bool {
	switch a {
	case AccessCommunityChat, AccessKnowledgeBase, AccessFileStorage:
		return true
	}
	return false
}

// AccessFlags records, per system, whether a grant has succeeded and not yet been revoked.
type AccessFlags struct {
	CommunityChat bool `json:"community_chat"`
	KnowledgeBase bool `json:"knowledge_base"`
	FileStorage   bool `json:"file_storage"`
}

func (f AccessFlags) Granted(sys AccessSystem) bool {
	switch sys {
	case AccessCommunityChat:
		return f.CommunityChat
	case AccessKnowledgeBase:
		return f.KnowledgeBase
	case AccessFileStorage:
		return f.FileStorage
	}
	return false
}

func (f *AccessFlags) Set(sys AccessSystem, granted bool) {
	switch sys {
	case AccessCommunityChat:
		f.CommunityChat = granted
	case AccessKnowledgeBase:
		f.KnowledgeBase = granted
	case AccessFileStorage:
		f.FileStorage = granted
	}
}

func (f AccessFlags) Any() bool { return f.CommunityChat || f.KnowledgeBase || f.FileStorage }
