package handler

import (
	"slices"

	"github.com/hitoshi/emerald/internal/model"
)

// Action はタブ内の操作リンク。
type Action struct {
	ID      string
	Title   string
	URL     string
	Icon    string
	Visible []string // 空の場合は全員に表示
}

// Tab はナビゲーションのタブ。
type Tab struct {
	ID      string
	Title   string
	URL     string
	Icon    string
	Visible []string // 空の場合は全員に表示
	Actions []Action
}

// Tab ID
const (
	tabSearch  = "search"
	tabProfile = "user-profile"
	tabAdmin   = "admin"
)

// siteTabs はナビゲーションの定義。
var siteTabs = []Tab{
	{
		ID:    tabSearch,
		Title: "Search",
		URL:   "/members/search/",
		Icon:  "las la-search",
	},
	{
		ID:    tabProfile,
		Title: "Profile",
		URL:   "/profile/",
		Icon:  "las la-user",
		Actions: []Action{
			{ID: "edit-profile", Title: "Edit Profile", URL: "/profile/edit/", Icon: "las la-edit"},
			{ID: "new-location", Title: "Add Location", URL: "/profile/location/new/", Icon: "las la-map-marker"},
		},
	},
	{
		ID:      tabAdmin,
		Title:   "Metrics",
		URL:     "/metrics",
		Icon:    "las la-chart-bar",
		Visible: []string{model.GroupAdmin},
	},
}

// privilegedGroups は全タブ・全操作を閲覧できるグループ。
var privilegedGroups = []string{model.GroupAdmin, model.GroupDeveloper}

// userGroups はユーザーの所属グループを返す。未ログインの場合はanonymous。
func userGroups(user *model.User) []string {
	if user == nil {
		return []string{model.GroupAnonymous}
	}
	return user.Groups
}

// visibleTo は表示対象グループが空か、ユーザーのグループと重なる場合にtrueを返す。
func visibleTo(visible, groups []string) bool {
	if len(visible) == 0 {
		return true
	}
	for _, g := range groups {
		if slices.Contains(privilegedGroups, g) || slices.Contains(visible, g) {
			return true
		}
	}
	return false
}

// TabsFor はユーザーに表示するタブと操作を返す。
func TabsFor(user *model.User) []Tab {
	groups := userGroups(user)

	tabs := make([]Tab, 0, len(siteTabs))
	for _, tab := range siteTabs {
		if !visibleTo(tab.Visible, groups) {
			continue
		}
		actions := make([]Action, 0, len(tab.Actions))
		for _, a := range tab.Actions {
			if visibleTo(a.Visible, groups) {
				actions = append(actions, a)
			}
		}
		tab.Actions = actions
		tabs = append(tabs, tab)
	}
	return tabs
}

func actionsFor(tabs []Tab, activeTab string) []Action {
	for _, tab := range tabs {
		if tab.ID == activeTab {
			return tab.Actions
		}
	}
	return nil
}
