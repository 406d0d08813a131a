package training

import (
	"trainflow/internal/apperr"
	"trainflow/internal/model"
)

// Operation names an action subject to role checks.
type Operation string

const (
	OpCreateTraining    Operation = "training.create"
	OpUpdateTraining    Operation = "training.update"
	OpDeleteTraining    Operation = "training.delete"
	OpBulkTrainings     Operation = "training.bulk"
	OpManageEnrollments Operation = "enrollment.manage"
	OpMarkAttendance    Operation = "attendance.mark"
	OpViewAttendance    Operation = "attendance.view"
	OpCreateMaterial    Operation = "material.create"
	OpDeleteMaterial    Operation = "material.delete"
	OpViewAnalytics     Operation = "feedback.analytics"
	OpViewReports       Operation = "report.view"
	OpCreateTemplate    Operation = "template.create"
	OpManageTemplate    Operation = "template.manage"
	OpDeleteComment     Operation = "comment.delete"
)

type access int

const (
	deny access = iota
	allow
	// ownerOnly allows the role only on resources it owns.
	ownerOnly
)

type rule struct {
	roles   map[model.Role]access
	message string
}

var policy = map[Operation]rule{
	OpCreateTraining: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: allow},
		message: "Only admins and trainers can create trainings",
	},
	OpUpdateTraining: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: ownerOnly},
		message: "You do not have permission to update this training",
	},
	OpDeleteTraining: {
		roles:   map[model.Role]access{model.RoleAdmin: allow},
		message: "Only admins can delete trainings",
	},
	OpBulkTrainings: {
		roles:   map[model.Role]access{model.RoleAdmin: allow},
		message: "Only admins can run bulk operations",
	},
	OpManageEnrollments: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: allow},
		message: "Only admins and trainers can manage enrollments",
	},
	OpMarkAttendance: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: allow},
		message: "Only admins and trainers can mark attendance",
	},
	OpViewAttendance: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: allow},
		message: "Only admins and trainers can view attendance",
	},
	OpCreateMaterial: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: allow},
		message: "Only admins and trainers can upload materials",
	},
	OpDeleteMaterial: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: ownerOnly},
		message: "You do not have permission to delete this material",
	},
	OpViewAnalytics: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: allow},
		message: "Only admins and trainers can view feedback analytics",
	},
	OpViewReports: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: allow},
		message: "Only admins and trainers can export reports",
	},
	OpCreateTemplate: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: allow},
		message: "Only admins and trainers can create templates",
	},
	OpManageTemplate: {
		roles:   map[model.Role]access{model.RoleAdmin: allow, model.RoleTrainer: ownerOnly},
		message: "You can only modify your own templates",
	},
	OpDeleteComment: {
		roles: map[model.Role]access{
			model.RoleAdmin: allow, model.RoleTrainer: ownerOnly, model.RoleParticipant: ownerOnly,
		},
		message: "You can only delete your own comments",
	},
}

// Authorize checks whether actor may perform op on a resource owned by ownerID.
// ownerID is ignored for operations without ownership rules.
func Authorize(op Operation, actor Actor, ownerID string) error {
	r, ok := policy[op]
	if !ok {
		return apperr.Forbidden("operation not permitted")
	}
	switch r.roles[actor.Role] {
	case allow:
		return nil
	case ownerOnly:
		if actor.ID != "" && actor.ID == ownerID {
			return nil
		}
	}
	return apperr.Forbidden(r.message)
}

// Roles lists the roles that may perform op, in any ownership.
func Roles(op Operation) []model.Role {
	var out []model.Role
	for _, role := range []model.Role{model.RoleAdmin, model.RoleTrainer, model.RoleParticipant} {
		if policy[op].roles[role] != deny {
			out = append(out, role)
		}
	}
	return out
}
