package loot

import "strings"

// Condition is a boolean predicate over a Context. Conditions on an entry
// are conjunctive: one failing condition excludes the entry from a pick.
type Condition func(Context) bool

func BiomeIs(biome string) Condition {
	return func(ctx Context) bool { return strings.EqualFold(ctx.Biome, biome) }
}

func WorldIs(world string) Condition {
	return func(ctx Context) bool { return strings.EqualFold(ctx.WorldName, world) }
}

func NightOnly() Condition {
	return func(ctx Context) bool { return ctx.Night }
}

func DayOnly() Condition {
	return func(ctx Context) bool { return !ctx.Night }
}

// SkillAtLeast holds when the integration layer reported a skill level of at
// least min. Absent metadata fails the condition.
func SkillAtLeast(skill string, min int) Condition {
	return func(ctx Context) bool {
		level, ok := ctx.SkillLevel(skill)
		return ok && level >= min
	}
}

// HasPermission holds when the integration layer reported the permission as
// granted at snapshot time.
func HasPermission(perm string) Condition {
	return func(ctx Context) bool { return ctx.Permission(perm) }
}

func Always() Condition {
	return func(Context) bool { return true }
}
