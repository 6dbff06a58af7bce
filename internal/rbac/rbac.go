package rbac

// Group is a permission group a user belongs to within an organization.
type Group string
type Action string

const (
	GroupAllUsers Group = "all_users"
	GroupEndUser  Group = "end-user"
	GroupBuilder  Group = "builder"
	GroupAdmin    Group = "admin"
)

const (
	ActionViewApp       Action = "view_app"
	ActionEditApp       Action = "edit_app"
	ActionCreateApp     Action = "create_app"
	ActionManageUsers   Action = "manage_users"
	ActionManageSources Action = "manage_data_sources"
)

func Can(group Group, action Action) bool {
	switch group {
	case GroupAdmin:
		return true
	case GroupBuilder:
		return action == ActionViewApp || action == ActionEditApp || action == ActionCreateApp || action == ActionManageSources
	case GroupEndUser, GroupAllUsers:
		return action == ActionViewApp
	default:
		return false
	}
}

// CanAny reports whether any of groups allows action.
func CanAny(groups []Group, action Action) bool {
	for _, group := range groups {
		if Can(group, action) {
			return true
		}
	}
	return false
}

func Normalize(group string) Group {
	switch Group(group) {
	case GroupAllUsers, GroupEndUser, GroupBuilder, GroupAdmin:
		return Group(group)
	default:
		return GroupEndUser
	}
}
