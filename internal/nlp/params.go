package nlp

import "strconv"

var directionLemmas = map[string]Direction{
	"前": DirForward,
	"後": DirBack,
	"左": DirLeft,
	"右": DirRight,
	"上": DirUp,
	"下": DirDown,
}

var rotationLemmas = map[string]RotationDirection{
	"時計回り":  RotClockwise,
	"反時計回り": RotCounterClockwise,
}

// extractParameters walks a clause's tokens and fills Parameters for the
// given action. Values are recorded as written; unit meters convert to
// centimeters. Range enforcement is the router's concern.
func extractParameters(action Action, tokens []Token) (Parameters, []string) {
	var params Parameters
	var missing []string

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]

		// "ドローンAA" / "drone 1": the token after the drone noun is the id.
		if t.Lemma == "ドローン" && i+1 < len(tokens) {
			next := tokens[i+1]
			if next.POS == POSNumber || next.POS == POSUnknown && isIdentifier(next.Surface) {
				params.TargetDroneID = next.Surface
				i++
				continue
			}
		}

		if d, ok := directionLemmas[t.Lemma]; ok && params.Direction == "" {
			params.Direction = d
			continue
		}
		if rd, ok := rotationLemmas[t.Lemma]; ok && params.RotationDirection == "" {
			params.RotationDirection = rd
			continue
		}

		if t.POS == POSNumber {
			value, err := strconv.Atoi(t.Surface)
			if err != nil {
				continue
			}
			unit := ""
			if i+1 < len(tokens) && tokens[i+1].POS == POSUnit {
				unit = tokens[i+1].Lemma
				i++
			}
			assignMeasure(action, &params, value, unit)
		}
	}

	switch action {
	case ActionMove:
		if params.Direction == "" {
			missing = append(missing, "direction")
		}
		if params.DistanceCm == 0 {
			missing = append(missing, "distance_cm")
		}
	case ActionRotate:
		if params.AngleDeg == 0 {
			missing = append(missing, "angle_deg")
		}
		if params.RotationDirection == "" {
			params.RotationDirection = RotClockwise
		}
	case ActionAltitudeSet:
		if params.AltitudeCm == 0 {
			missing = append(missing, "altitude_cm")
		}
	}

	return params, missing
}

// assignMeasure routes a numeric value to the parameter the unit and action
// imply.
func assignMeasure(action Action, params *Parameters, value int, unit string) {
	switch unit {
	case "m":
		value *= 100
		unit = "cm"
	case "deg":
		if params.AngleDeg == 0 {
			params.AngleDeg = value
		}
		return
	case "s":
		if params.DurationS == 0 {
			params.DurationS = value
		}
		return
	}

	// cm or bare number: the action decides which measure it is.
	switch action {
	case ActionAltitudeSet:
		if params.AltitudeCm == 0 {
			params.AltitudeCm = value
		}
	case ActionRotate:
		if unit == "" && params.AngleDeg == 0 {
			params.AngleDeg = value
		}
	default:
		if params.DistanceCm == 0 {
			params.DistanceCm = value
		}
	}
}

// isIdentifier reports whether s matches the drone id pattern
// [A-Za-z0-9_-]+.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isASCIIWordRune(r) {
			return false
		}
	}
	return true
}
