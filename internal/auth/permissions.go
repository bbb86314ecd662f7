package auth

// Objects guarded by the policy.
const (
	ObjInvitations    = "invitations"
	ObjCoaches        = "coaches"
	ObjDocuments      = "documents"
	ObjCertifications = "certifications"
	ObjContracts      = "contracts"
	ObjSelf           = "self"
	ObjNotifications  = "notifications"
)

// Actions.
const (
	ActRead   = "read"
	ActWrite  = "write"
	ActReview = "review"
	ActDelete = "delete"
	ActSign   = "sign"
)

// Permission is a single (role, object, action) grant.
type Permission struct {
	Role   string
	Object string
	Action string
}

// BuiltinPermissions is the default studio policy. Admin inherits everything a reviewer can do.
var BuiltinPermissions = []Permission{
	{RoleReviewer, ObjInvitations, ActRead},
	{RoleReviewer, ObjInvitations, ActWrite},
	{RoleReviewer, ObjCoaches, ActRead},
	{RoleReviewer, ObjCoaches, ActReview},
	{RoleReviewer, ObjDocuments, ActReview},
	{RoleReviewer, ObjCertifications, ActReview},
	{RoleReviewer, ObjContracts, ActRead},
	{RoleReviewer, ObjContracts, ActWrite},
	{RoleAdmin, ObjCoaches, ActDelete},
	{RoleCoach, ObjSelf, ActRead},
	{RoleCoach, ObjSelf, ActWrite},
	{RoleCoach, ObjContracts, ActSign},
	{RoleCoach, ObjNotifications, ActRead},
	{RoleReviewer, ObjNotifications, ActRead},
}

// roleInheritance maps child role -> parent role.
var roleInheritance = [][2]string{
	{RoleAdmin, RoleReviewer},
}
