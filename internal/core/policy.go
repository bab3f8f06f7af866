package core

import "github.com/tacklebox-studio/tacklebox/pkg/models"

// PolicyVersion is written into exported policy files.
const PolicyVersion = "1.0"

// Permission keys of the role-set model.
const (
	PermManageUsers        = "manage_users"
	PermManageProjects     = "manage_projects"
	PermManageCategories   = "manage_categories"
	PermManageBadges       = "manage_badges"
	PermManageBrandAssets  = "manage_brand_assets"
	PermViewAnalytics      = "view_analytics"
	PermViewAllTasks       = "view_all_tasks"
	PermViewOwnTasks       = "view_own_tasks"
	PermAssignTask         = "assign_task"
	PermSubmitTask         = "submit_task"
	PermClaimTask          = "claim_task"
	PermUploadDeliverable  = "upload_deliverable"
	PermApproveDeliverable = "approve_deliverable"
	PermRequestRevision    = "request_revision"
	PermViewBilling        = "view_billing"
	PermViewLeaderboard    = "view_leaderboard"
	PermUseAIGeneration    = "use_ai_generation"
	PermEditProfile        = "edit_profile"
)

// Capability keys of the level model.
const (
	CapViewTasks          = "VIEW_TASKS"
	CapClaimTasks         = "CLAIM_TASKS"
	CapSubmitDeliverables = "SUBMIT_DELIVERABLES"
	CapUseAITools         = "USE_AI_TOOLS"
	CapClaimPriorityTasks = "CLAIM_PRIORITY_TASKS"
	CapViewLeaderboard    = "VIEW_LEADERBOARD"
	CapClaimUrgentTasks   = "CLAIM_URGENT_TASKS"
	CapMentorCampers      = "MENTOR_CAMPERS"
	CapReviewOthers       = "REVIEW_OTHERS"
	CapAssignTasks        = "ASSIGN_TASKS"
	CapManageUsers        = "MANAGE_USERS"
	CapAccessAdminPanel   = "ACCESS_ADMIN_PANEL"
)

func roles(rs ...models.Role) []models.Role { return rs }

// DefaultPolicy returns the built-in TackleBox workflow. Any change to the
// workflow is made here or in a policy file, never in resolver code.
func DefaultPolicy() models.PolicyFile {
	return models.PolicyFile{
		Version: PolicyVersion,
		Transitions: []models.TransitionRule{
			{From: models.StatusSubmitted, To: models.StatusAssigned, Roles: roles(models.RoleAdmin)},
			{From: models.StatusSubmitted, To: models.StatusCancelled, Roles: roles(models.RoleClient, models.RoleAdmin)},
			{From: models.StatusAssigned, To: models.StatusInProgress, Roles: roles(models.RoleContractor, models.RoleAdmin)},
			{From: models.StatusAssigned, To: models.StatusCancelled, Roles: roles(models.RoleAdmin)},
			{From: models.StatusInProgress, To: models.StatusReview, Roles: roles(models.RoleContractor, models.RoleAdmin), Capability: CapSubmitDeliverables},
			{From: models.StatusInProgress, To: models.StatusCancelled, Roles: roles(models.RoleAdmin)},
			{From: models.StatusReview, To: models.StatusApproved, Roles: roles(models.RoleClient, models.RoleAdmin)},
			{From: models.StatusReview, To: models.StatusRevision, Roles: roles(models.RoleClient, models.RoleAdmin)},
			{From: models.StatusRevision, To: models.StatusInProgress, Roles: roles(models.RoleContractor, models.RoleAdmin)},
			{From: models.StatusApproved, To: models.StatusClosed, Roles: roles(models.RoleClient, models.RoleAdmin)},
		},
		Permissions: map[string][]models.Role{
			PermManageUsers:        roles(models.RoleAdmin),
			PermManageProjects:     roles(models.RoleAdmin),
			PermManageCategories:   roles(models.RoleAdmin),
			PermManageBadges:       roles(models.RoleAdmin),
			PermViewAnalytics:      roles(models.RoleAdmin),
			PermViewAllTasks:       roles(models.RoleAdmin),
			PermAssignTask:         roles(models.RoleAdmin),
			PermSubmitTask:         roles(models.RoleClient, models.RoleAdmin),
			PermApproveDeliverable: roles(models.RoleClient, models.RoleAdmin),
			PermRequestRevision:    roles(models.RoleClient, models.RoleAdmin),
			PermViewBilling:        roles(models.RoleClient, models.RoleAdmin),
			PermManageBrandAssets:  roles(models.RoleClient, models.RoleAdmin),
			PermClaimTask:          roles(models.RoleContractor),
			PermUploadDeliverable:  roles(models.RoleContractor, models.RoleAdmin),
			PermViewLeaderboard:    roles(models.RoleContractor, models.RoleAdmin),
			PermViewOwnTasks:       roles(models.RoleClient, models.RoleContractor, models.RoleAdmin),
			PermUseAIGeneration:    roles(models.RoleClient, models.RoleContractor, models.RoleAdmin),
			PermEditProfile:        roles(models.RoleClient, models.RoleContractor, models.RoleAdmin),
		},
		Capabilities: map[string]int{
			CapViewTasks:          1,
			CapClaimTasks:         1,
			CapSubmitDeliverables: 1,
			CapUseAITools:         2,
			CapClaimPriorityTasks: 3,
			CapViewLeaderboard:    3,
			CapClaimUrgentTasks:   4,
			CapMentorCampers:      5,
			CapReviewOthers:       6,
			CapAssignTasks:        AdminTierLevel,
			CapManageUsers:        AdminTierLevel,
			CapAccessAdminPanel:   AdminTierLevel,
		},
		LevelTitles: map[int]string{
			1: "Tenderfoot",
			2: "Trailblazer",
			3: "Pathfinder",
			4: "Ranger",
			5: "Scout Leader",
			6: "Senior Guide",
			7: "Camp Director",
		},
	}
}
