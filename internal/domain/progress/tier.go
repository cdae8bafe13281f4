package progress

// Названия ступеней стаи. Уровень хранится числом, ступень только отображается.
const (
	TierAlphaPup  = "Alpha Pup"
	TierOmegaPup  = "Omega Pup"
	TierBetaWolf  = "Beta Wolf"
	TierAlphaWolf = "Alpha Wolf"
)

// TierName maps a numeric level to its pack tier.
func TierName(level int) string {
	switch {
	case level >= 20:
		return TierAlphaWolf
	case level >= 10:
		return TierBetaWolf
	case level >= 5:
		return TierOmegaPup
	default:
		return TierAlphaPup
	}
}
