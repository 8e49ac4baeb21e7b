package core

// UnavailableReason explains why an engine cannot serve requests. The set is
// closed and the numeric values are fixed by the boundary contract; hosts on
// the far side of the bridge match on the raw integers.
type UnavailableReason int

// Availability reason codes.
const (
	// UnavailablePolicyDisabled means the platform intelligence features
	// (e.g. the Apple Intelligence toggle) are switched off for this user.
	UnavailablePolicyDisabled UnavailableReason = 0
	// UnavailableDeviceNotEligible means the hardware cannot run the model.
	UnavailableDeviceNotEligible UnavailableReason = 1
	// UnavailableModelNotReady means assets are still downloading or warming.
	UnavailableModelNotReady UnavailableReason = 2
	// UnavailableUnknown covers reasons the engine does not enumerate.
	UnavailableUnknown UnavailableReason = 0xFF
)

// String returns the symbolic name of the reason.
func (r UnavailableReason) String() string {
	switch r {
	case UnavailablePolicyDisabled:
		return "policy_disabled"
	case UnavailableDeviceNotEligible:
		return "device_not_eligible"
	case UnavailableModelNotReady:
		return "model_not_ready"
	default:
		return "unknown"
	}
}

// UseCase selects the specialization a model instance is configured for.
type UseCase int

// Use cases.
const (
	UseCaseGeneral        UseCase = 0
	UseCaseContentTagging UseCase = 1
)

// String returns the symbolic name of the use case.
func (u UseCase) String() string {
	switch u {
	case UseCaseContentTagging:
		return "content_tagging"
	default:
		return "general"
	}
}

// Guardrails selects the content-safety policy applied to generations.
type Guardrails int

// Guardrail policies.
const (
	GuardrailsDefault                          Guardrails = 0
	GuardrailsPermissiveContentTransformations Guardrails = 1
)

// String returns the symbolic name of the guardrail policy.
func (g Guardrails) String() string {
	switch g {
	case GuardrailsPermissiveContentTransformations:
		return "permissive_content_transformations"
	default:
		return "default"
	}
}
