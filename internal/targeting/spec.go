// Package targeting turns an abstract audience description into a concrete
// list of recipient ids by querying the portal directory.
package targeting

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTargetSpec is returned when a target is missing fields its variant requires.
	ErrInvalidTargetSpec = errors.New("invalid target spec")
	// ErrResolutionFailed wraps directory query failures.
	ErrResolutionFailed = errors.New("target resolution failed")
	// ErrNoHoD is returned when the sender's department has no active head.
	ErrNoHoD = errors.New("no active head of department")
	// ErrAmbiguousHoD is returned when more than one active head is found.
	ErrAmbiguousHoD = errors.New("more than one active head of department")
)

// Wire names of the target variants
const (
	TypeAllStudents     = "all_students"
	TypeAllTeachers     = "all_teachers"
	TypeSpecificYear    = "specific_year"
	TypeSpecificSection = "specific_section"
	TypeHOD             = "hod"
)

// Spec describes the audience of a notification. The concrete types below are
// the only implementations.
type Spec interface {
	Type() string
	isSpec()
}

// AllStudents targets every active student of the sender's department.
type AllStudents struct{}

// AllTeachers targets every active teacher of the sender's department.
type AllTeachers struct{}

// SpecificYear targets the students of one year of study.
type SpecificYear struct {
	Year int
}

// SpecificSection targets one section of a year within an academic year.
type SpecificSection struct {
	Year           int
	Section        string
	AcademicYearID string
}

// HeadOfDepartment targets the single active super admin of the department.
type HeadOfDepartment struct{}

func (AllStudents) Type() string      { return TypeAllStudents }
func (AllTeachers) Type() string      { return TypeAllTeachers }
func (SpecificYear) Type() string     { return TypeSpecificYear }
func (SpecificSection) Type() string  { return TypeSpecificSection }
func (HeadOfDepartment) Type() string { return TypeHOD }

func (AllStudents) isSpec()      {}
func (AllTeachers) isSpec()      {}
func (SpecificYear) isSpec()     {}
func (SpecificSection) isSpec()  {}
func (HeadOfDepartment) isSpec() {}

// Validate checks the fields each variant requires.
func Validate(spec Spec) error {
	switch s := spec.(type) {
	case AllStudents, AllTeachers, HeadOfDepartment:
		return nil
	case SpecificYear:
		if s.Year < 1 {
			return fmt.Errorf("%w: year must be positive", ErrInvalidTargetSpec)
		}
		return nil
	case SpecificSection:
		if s.Year < 1 {
			return fmt.Errorf("%w: year must be positive", ErrInvalidTargetSpec)
		}
		if s.Section == "" {
			return fmt.Errorf("%w: section is required", ErrInvalidTargetSpec)
		}
		if strings.Contains(s.Section, "-") {
			return fmt.Errorf("%w: section may not contain '-'", ErrInvalidTargetSpec)
		}
		if s.AcademicYearID == "" {
			return fmt.Errorf("%w: academic year is required", ErrInvalidTargetSpec)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: target is required", ErrInvalidTargetSpec)
	default:
		return fmt.Errorf("%w: unsupported target %T", ErrInvalidTargetSpec, spec)
	}
}

// Parse decodes the targetType/targetValue pair accepted by the HTTP API.
//
//	all_students, all_teachers  "all" (or empty)
//	hod                         "hod" (or empty)
//	specific_year               "3"
//	specific_section            "3-B-AY25", everything after the second dash is the academic year id
func Parse(targetType, targetValue string) (Spec, error) {
	kind := strings.TrimSpace(targetType)
	value := strings.TrimSpace(targetValue)

	var spec Spec
	switch kind {
	case TypeAllStudents, TypeAllTeachers:
		if value != "" && value != "all" {
			return nil, fmt.Errorf("%w: %s expects value \"all\"", ErrInvalidTargetSpec, kind)
		}
		if kind == TypeAllStudents {
			spec = AllStudents{}
		} else {
			spec = AllTeachers{}
		}
	case TypeHOD:
		if value != "" && value != "hod" {
			return nil, fmt.Errorf("%w: hod expects value \"hod\"", ErrInvalidTargetSpec)
		}
		spec = HeadOfDepartment{}
	case TypeSpecificYear:
		year, err := parseYear(value)
		if err != nil {
			return nil, err
		}
		spec = SpecificYear{Year: year}
	case TypeSpecificSection:
		parts := strings.SplitN(value, "-", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: section target must be {year}-{section}-{academicYearId}", ErrInvalidTargetSpec)
		}
		year, err := parseYear(parts[0])
		if err != nil {
			return nil, err
		}
		spec = SpecificSection{
			Year:           year,
			Section:        strings.TrimSpace(parts[1]),
			AcademicYearID: strings.TrimSpace(parts[2]),
		}
	case "":
		return nil, fmt.Errorf("%w: targetType is required", ErrInvalidTargetSpec)
	default:
		return nil, fmt.Errorf("%w: unknown targetType %q", ErrInvalidTargetSpec, targetType)
	}

	if err := Validate(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// Encode is the inverse of Parse.
func Encode(spec Spec) (targetType, targetValue string) {
	switch s := spec.(type) {
	case AllStudents:
		return TypeAllStudents, "all"
	case AllTeachers:
		return TypeAllTeachers, "all"
	case HeadOfDepartment:
		return TypeHOD, "hod"
	case SpecificYear:
		return TypeSpecificYear, strconv.Itoa(s.Year)
	case SpecificSection:
		return TypeSpecificSection, fmt.Sprintf("%d-%s-%s", s.Year, s.Section, s.AcademicYearID)
	}
	return "", ""
}

func parseYear(value string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: year %q is not a number", ErrInvalidTargetSpec, value)
	}
	return year, nil
}
