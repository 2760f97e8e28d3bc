package catalog

const JobUnknown = "Unknown"

var jobsByPrefix = map[int]string{
	11: "Gladiator",
	12: "Templar",
	13: "Assassin",
	14: "Ranger",
	15: "Sorcerer",
	16: "Elementalist",
	17: "Cleric",
	18: "Chanter",
}

// JobFromSkill classifies a canonical skill code by its two leading digits.
func JobFromSkill(code int) (string, bool) {
	if code < 10_000_000 || code > 99_999_999 {
		return "", false
	}
	job, ok := jobsByPrefix[code/1_000_000]
	return job, ok
}
