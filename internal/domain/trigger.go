package domain

// TriggerKey identifies a business event that may produce notifications,
// e.g. "WorkOrder.ACCEPT".
type TriggerKey string

const (
	TriggerCreated      TriggerKey = "WorkOrder.CREATE"
	TriggerAccepted     TriggerKey = "WorkOrder.ACCEPT"
	TriggerRejected     TriggerKey = "WorkOrder.REJECT"
	TriggerDeleted      TriggerKey = "WorkOrder.DELETE"
	TriggerDispatched   TriggerKey = "WorkOrder.DISPATCH"
	TriggerReturned     TriggerKey = "WorkOrder.RETURN_TO_UNIT"
	TriggerReminded     TriggerKey = "WorkOrder.REMIND"
	TriggerEscalated    TriggerKey = "WorkOrder.ESCALATE"
	TriggerCompleted    TriggerKey = "WorkOrder.COMPLETE"
	TriggerCancelAccept TriggerKey = "WorkOrder.CANCEL_ACCEPT"
	TriggerRescheduled  TriggerKey = "WorkOrder.RESCHEDULE"
	TriggerRated        TriggerKey = "WorkOrder.RATE"
	TriggerClosed       TriggerKey = "WorkOrder.CLOSE"
	TriggerAutoClosed   TriggerKey = "WorkOrder.AUTO_CLOSE"
	TriggerRework       TriggerKey = "WorkOrder.REQUEST_REWORK"
	TriggerReopened     TriggerKey = "WorkOrder.REOPEN"
	TriggerAppealed     TriggerKey = "WorkOrder.APPEAL"
	TriggerApproaching  TriggerKey = "WorkOrder.DEADLINE_APPROACHING"
	TriggerOverdue      TriggerKey = "WorkOrder.DEADLINE_OVERDUE"
)

// TriggerForAction maps a lifecycle action to its trigger key.
func TriggerForAction(action Action) TriggerKey {
	return TriggerKey("WorkOrder." + string(action))
}

// PolicyKind selects how recipients are computed for a trigger. The set is
// closed so an unrecognized configuration fails at load time, not silently
// at dispatch time.
type PolicyKind string

const (
	PolicyRequester       PolicyKind = "REQUESTER"
	PolicyHandler         PolicyKind = "HANDLER"
	PolicyUnitDispatchers PolicyKind = "UNIT_DISPATCHERS"
	PolicyAllRelated      PolicyKind = "ALL_RELATED"
	PolicyExplicitList    PolicyKind = "EXPLICIT_LIST"
)

// KnownPolicyKinds is the exhaustive variant set.
var KnownPolicyKinds = []PolicyKind{
	PolicyRequester,
	PolicyHandler,
	PolicyUnitDispatchers,
	PolicyAllRelated,
	PolicyExplicitList,
}

// ValidPolicyKind reports membership in the closed set.
func ValidPolicyKind(kind PolicyKind) bool {
	for _, k := range KnownPolicyKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TriggerConfig is per-trigger notification routing configuration. The table
// is loaded once at startup and is read-only afterwards; disabling a trigger
// is how operators silence a noisy notification without a deploy.
type TriggerConfig struct {
	Key              TriggerKey
	Enabled          bool
	TemplateType     string
	Policy           PolicyKind
	RecipientRole    string
	ExcludePerformer bool
}
