package web

import "dles/internal/roles"

type PaginationData struct {
	BasePath   string
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	HasPrev    bool
	HasNext    bool
	PrevPage   int
	NextPage   int
}

// AdminTabs lists the admin panel tabs the role may see.
func AdminTabs(role roles.Role) []AdminTab {
	var tabs []AdminTab
	if roles.CanManageGames(role) {
		tabs = append(tabs,
			AdminTab{Key: "games", Label: "Games"},
			AdminTab{Key: "submissions", Label: "Submissions"},
		)
	}
	if roles.CanAccessAdmin(role) {
		tabs = append(tabs, AdminTab{Key: "presets", Label: "Preset lists"})
	}
	if roles.CanManageUsers(role) {
		tabs = append(tabs,
			AdminTab{Key: "users", Label: "Users"},
			AdminTab{Key: "settings", Label: "Settings"},
		)
	}
	return tabs
}
