package reconcile

// The component taxonomy is a closed enum for the reconciler's own matching
// logic (spec §9 Open Question on taxonomy open/closed enum), while the raw
// page record it reads from (bom.Component) keeps plain string fields so a
// novel VLM string round-trips instead of being lost.

// letterMapping is a BOM letter code's default (type, subtypes) per the
// original service's BOM_LETTER_TO_TYPES table. The first subtype is the
// fallback used when description matching finds a type but no subtype.
type letterMapping struct {
	Type     string
	Subtypes []string
}

var bomLetterToTypes = map[string]letterMapping{
	"A": {"pipe", []string{"pipe"}},
	"B": {"pipe", []string{"pipe"}},
	"C": {"fitting", []string{"tee", "reducing_tee", "equal_tee"}},
	"D": {"fitting", []string{"reducer_con", "reducer_ecc", "reducer"}},
	"E": {"fitting", []string{"sockolet", "weldolet"}},
	"F": {"flange", []string{"wn_flange"}},
	"G": {"flange", []string{"wn_flange"}},
	"H": {"flange", []string{"blind_flange", "wn_flange"}},
	"I": {"flange", []string{"orifice_flange"}},
	"J": {"fitting", []string{"elbow_90", "elbow_90_lr", "elbow_45"}},
	"K": {"fitting", []string{"cap", "coupling"}},
	"L": {"fitting", []string{"elbow_90", "elbow_90_lr"}},
	"M": {"flange", []string{"wn_flange"}},
	"N": {"flange", []string{"blind_flange"}},
}

// skipLetterCodes are letter codes the taxonomy deliberately does not
// compare against drawing components (spec §3 ComparisonItem N/A).
var skipLetterCodes = map[string]bool{
	"O": true, "P": true, "Q": true, "R": true, "S": true, "T": true,
	"U": true, "V": true, "W": true, "X": true, "Y": true, "Z": true,
}

// descriptionToSubtype maps a BOM description keyword to a component
// subtype. Matching tries keys longest-first so "ELBOW 90 LR" wins over
// "ELBOW 90" over "ELBOW".
var descriptionToSubtype = map[string]string{
	"PIPE":               "pipe",
	"ELBOW 90 LR":        "elbow_90_lr",
	"ELBOW 90":           "elbow_90",
	"ELBOW 45":           "elbow_45",
	"EQUAL TEE":          "tee",
	"REDUCING TEE":       "reducing_tee",
	"TEE":                "tee",
	"REDUCER CON":        "reducer_con",
	"REDUCER ECC":        "reducer_ecc",
	"REDUCER ECCENTRIC":  "reducer_ecc",
	"REDUCER CONCENTRIC": "reducer_con",
	"REDUCER":            "reducer_con",
	"WN FLANGE":          "wn_flange",
	"FLANGE WN":          "wn_flange",
	"BLIND FLANGE":       "blind_flange",
	"ORIFICE FLANGE":     "orifice_flange",
	"SOCKOLET":           "sockolet",
	"WELDOLET":           "weldolet",
	"GATE VALVE":         "gate",
	"GLOBE VALVE":        "globe",
	"BALL VALVE":         "ball",
	"CHECK VALVE":        "check",
	"NEEDLE VALVE":       "needle",
	"NON RETURN":         "non_return",
	"BUTTERFLY":          "butterfly",
	"CLAMP":              "clamp",
	"SUPPORT":            "support",
	"CAP":                "cap",
	"COUPLING":           "coupling",
}

// descriptionToType maps a BOM description keyword to a component type.
// "skip" is a sentinel type meaning the row is never compared.
var descriptionToType = map[string]string{
	"PIPE":     "pipe",
	"ELBOW":    "fitting",
	"TEE":      "fitting",
	"REDUCER":  "fitting",
	"SOCKOLET": "fitting",
	"WELDOLET": "fitting",
	"CAP":      "fitting",
	"COUPLING": "fitting",
	"FLANGE":   "flange",
	"VALVE":    "valve",
	"GASKET":   "gasket",
	"BOLT":     "bolt",
	"NUT":      "bolt",
	"STUD":     "bolt",
	"CLAMP":    "support",
	"SUPPORT":  "support",
	"PAINT":    "skip",
	"GALVAN":   "skip",
}

// skipDescriptionKeywords short-circuits rows whose description names a
// part class never represented as a drawing symbol.
var skipDescriptionKeywords = []string{"GASKET", "BOLT", "NUT", "STUD", "PAINT", "GALVAN"}

func isSkipType(t string) bool {
	return t == "skip" || t == "gasket" || t == "bolt"
}
