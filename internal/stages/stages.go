// Package stages defines the two relationship-stage vocabularies used by the
// companion pipeline.
//
// PersonaStage is the coarse 4-step script sequence driving live chat tone.
// AnalyticStage is the 20-value vocabulary emitted by the summarization and
// profiling paths. The two sets are intentionally independent; MapToPersona is
// the only sanctioned bridge between them.
package stages

// PersonaStage identifies one step of the linear persona script sequence.
type PersonaStage string

const (
	PersonaIntroductory       PersonaStage = "introductory"
	PersonaGrowingAttraction  PersonaStage = "growing_attraction"
	PersonaNewlyDating        PersonaStage = "newly_dating"
	PersonaStableRelationship PersonaStage = "stable_relationship"
)

// PersonaSequence is the full ordered progression. Advancement is monotonic,
// one step at a time, never regressing.
var PersonaSequence = []PersonaStage{
	PersonaIntroductory,
	PersonaGrowingAttraction,
	PersonaNewlyDating,
	PersonaStableRelationship,
}

// IsPersonaStage reports whether s is a known persona stage key.
func IsPersonaStage(s string) bool {
	for _, p := range PersonaSequence {
		if string(p) == s {
			return true
		}
	}
	return false
}

// Next returns the stage immediately after p, or p itself when p is already
// the final stage or unknown.
func Next(p PersonaStage) PersonaStage {
	for i, s := range PersonaSequence {
		if s == p && i+1 < len(PersonaSequence) {
			return PersonaSequence[i+1]
		}
	}
	return p
}

// CanAdvance reports whether a proposed stage is an acceptable transition from
// current: either unchanged or exactly the next step in sequence.
func CanAdvance(current, proposed PersonaStage) bool {
	if current == proposed {
		return true
	}
	return Next(current) == proposed && current != proposed
}

// AnalyticStage is one value of the fixed summarization vocabulary.
type AnalyticStage string

const (
	AnalyticNewConnection       AnalyticStage = "new_connection"
	AnalyticBuildingRapport     AnalyticStage = "building_rapport"
	AnalyticGrowingTrust        AnalyticStage = "growing_trust"
	AnalyticDeepeningBond       AnalyticStage = "deepening_bond"
	AnalyticEmotionalIntimacy   AnalyticStage = "emotional_intimacy"
	AnalyticHoneymoon           AnalyticStage = "honeymoon"
	AnalyticStableCompanionship AnalyticStage = "stable_companionship"
	AnalyticComfortableRoutine  AnalyticStage = "comfortable_routine"
	AnalyticRenewedPassion      AnalyticStage = "renewed_passion"
	AnalyticConflict            AnalyticStage = "conflict"
	AnalyticTension             AnalyticStage = "tension"
	AnalyticMisunderstanding    AnalyticStage = "misunderstanding"
	AnalyticReconciliation      AnalyticStage = "reconciliation"
	AnalyticHealing             AnalyticStage = "healing"
	AnalyticDriftingApart       AnalyticStage = "drifting_apart"
	AnalyticRekindling          AnalyticStage = "rekindling"
	AnalyticCodependencyRisk    AnalyticStage = "codependency_risk"
	AnalyticMatureLove          AnalyticStage = "mature_love"
	AnalyticTransition          AnalyticStage = "transition"
	AnalyticUncertainty         AnalyticStage = "uncertainty"
)

// AnalyticStages lists the full 20-value vocabulary, in documentation order.
var AnalyticStages = []AnalyticStage{
	AnalyticNewConnection,
	AnalyticBuildingRapport,
	AnalyticGrowingTrust,
	AnalyticDeepeningBond,
	AnalyticEmotionalIntimacy,
	AnalyticHoneymoon,
	AnalyticStableCompanionship,
	AnalyticComfortableRoutine,
	AnalyticRenewedPassion,
	AnalyticConflict,
	AnalyticTension,
	AnalyticMisunderstanding,
	AnalyticReconciliation,
	AnalyticHealing,
	AnalyticDriftingApart,
	AnalyticRekindling,
	AnalyticCodependencyRisk,
	AnalyticMatureLove,
	AnalyticTransition,
	AnalyticUncertainty,
}

var analyticSet = func() map[AnalyticStage]struct{} {
	m := make(map[AnalyticStage]struct{}, len(AnalyticStages))
	for _, s := range AnalyticStages {
		m[s] = struct{}{}
	}
	return m
}()

// IsAnalyticStage reports whether s is a member of the 20-value vocabulary.
func IsAnalyticStage(s string) bool {
	_, ok := analyticSet[AnalyticStage(s)]
	return ok
}

// MapToPersona maps an analytic stage onto the coarse persona sequence. The
// mapping is deliberately lossy: analytic stages describe observed dynamics,
// persona stages describe scripted tone.
func MapToPersona(a AnalyticStage) PersonaStage {
	switch a {
	case AnalyticNewConnection, AnalyticBuildingRapport, AnalyticUncertainty:
		return PersonaIntroductory
	case AnalyticGrowingTrust, AnalyticDeepeningBond, AnalyticRekindling, AnalyticTransition:
		return PersonaGrowingAttraction
	case AnalyticEmotionalIntimacy, AnalyticHoneymoon, AnalyticRenewedPassion:
		return PersonaNewlyDating
	default:
		// remaining stages describe long-run dynamics of an established bond
		return PersonaStableRelationship
	}
}
