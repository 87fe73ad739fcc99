package resolver

import (
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		dobIndex int
		want     Fields
	}{
		{
			name:     "to anchor and guardian label",
			lines:    []string{"Government of India", "To", "Anil Sharma", "S/O: Suresh Sharma", "DOB: 12/04/1988", "MALE"},
			dobIndex: 4,
			want:     Fields{Name: "Anil Sharma", Father: "Suresh Sharma", NameRule: RuleNameAfterTo, FatherRule: RuleFatherLabel},
		},
		{
			name:     "explicit name label",
			lines:    []string{"NAME: anil kumar sharma", "D/O Meena Kumari"},
			dobIndex: -1,
			want:     Fields{Name: "Anil Kumar Sharma", Father: "Meena Kumari", NameRule: RuleNameLabel, FatherRule: RuleFatherLabel},
		},
		{
			name:     "to anchor skips masked and literal lines",
			lines:    []string{"To", "To", "XXXX XXXX 1234", "Priya Devi"},
			dobIndex: -1,
			want:     Fields{Name: "Priya Devi", NameRule: RuleNameAfterTo},
		},
		{
			name:     "near dob takes second to last candidate",
			lines:    []string{"Government of India", "Header", "Anil Sharma", "Male", "DOB: 12/04/1988"},
			dobIndex: 4,
			want:     Fields{Name: "Anil Sharma", Father: "Male", NameRule: RuleNameNearDOB, FatherRule: RuleFatherNearDOB},
		},
		{
			name:     "near dob with a single candidate",
			lines:    []string{"Government of India", "Anil Sharma", "DOB: 12/04/1988", "Father: Suresh Sharma"},
			dobIndex: 2,
			want:     Fields{Name: "Anil Sharma", Father: "Suresh Sharma", NameRule: RuleNameNearDOB, FatherRule: RuleFatherLabel},
		},
		{
			name:     "short label falls back to position",
			lines:    []string{"S/O: Ab", "Suresh Kumar", "DOB: 01/01/1990"},
			dobIndex: 2,
			want:     Fields{Name: "Suresh Kumar", Father: "Suresh Kumar", NameRule: RuleNameNearDOB, FatherRule: RuleFatherNearDOB},
		},
		{
			name:     "scan skips boilerplate and father",
			lines:    []string{"Government of India", "Father: Suresh Sharma", "Anil Sharma", "MALE"},
			dobIndex: -1,
			want:     Fields{Name: "Anil Sharma", Father: "Suresh Sharma", NameRule: RuleNameScan, FatherRule: RuleFatherLabel},
		},
		{
			name:     "guardian token inside a name is not a label",
			lines:    []string{"Government of India", "To", "Dionne Sharma", "Dion Verma", "S/O: Suresh Sharma"},
			dobIndex: -1,
			want:     Fields{Name: "Dionne Sharma", Father: "Suresh Sharma", NameRule: RuleNameAfterTo, FatherRule: RuleFatherLabel},
		},
		{
			name:     "tamil guardian token",
			lines:    []string{"தந்தை: Suresh Sharma"},
			dobIndex: -1,
			want:     Fields{Father: "Suresh Sharma", FatherRule: RuleFatherLabel},
		},
		{
			name:     "empty transcript",
			lines:    nil,
			dobIndex: -1,
			want:     Fields{},
		},
		{
			name:     "dob index out of range is ignored",
			lines:    []string{"MALE"},
			dobIndex: 7,
			want:     Fields{},
		},
	}

	r := New(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := r.Resolve(tc.lines, tc.dobIndex)
			if got != tc.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestGuardianLabelBeatsCloserPosition(t *testing.T) {
	lines := []string{"Anil Sharma", "S/O: Ramesh Kumar", "Vijay Kumar", "DOB: 01/01/1990"}
	got := New(nil).Resolve(lines, 3)

	if got.Father != "Ramesh Kumar" || got.FatherRule != RuleFatherLabel {
		t.Errorf("father = %q via %s, want Ramesh Kumar via %s", got.Father, got.FatherRule, RuleFatherLabel)
	}
}

func TestGuardianPatternVariants(t *testing.T) {
	r := New(nil)
	tests := []struct {
		line string
		want string
	}{
		{"S/O: Ramesh Kumar", "Ramesh Kumar"},
		{"c/o  Lakshmi Narayan, 12 Main Road", "Lakshmi Narayan"},
		{"Father's Name: Gopal Rao", "Gopal Rao"},
		{"DIO Sita Ram", "Sita Ram"},
		{"Studio Apartments", ""},
		{"Dionne Sharma", ""},
		{"Diocese of Madras", ""},
		{"D/O. Meena Kumari", "Meena Kumari"},
		{"FATHER NAME Gopal Rao", "Gopal Rao"},
	}
	for _, tc := range tests {
		got, _ := r.fatherLabel(State{Lines: []string{tc.line}})
		if got != tc.want {
			t.Errorf("fatherLabel(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestNameScanSkipsPunctuatedFather(t *testing.T) {
	r := New(nil)
	s := State{
		Lines:  []string{"A. K. Rao", "Lakshmi Rao"},
		Father: "A. K. Rao",
	}
	got, ok := r.nameScan(s)
	if !ok || got != "Lakshmi Rao" {
		t.Errorf("nameScan() = %q, %v, want Lakshmi Rao", got, ok)
	}
}

func TestResolveDeterministic(t *testing.T) {
	lines := []string{"Government of India", "Header", "Anil Sharma", "Male", "DOB: 12/04/1988"}
	r := New(nil)
	first := r.Resolve(lines, 4)
	for i := 0; i < 5; i++ {
		if got := r.Resolve(lines, 4); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestRulesOrder(t *testing.T) {
	want := []string{RuleFatherLabel, RuleFatherNearDOB, RuleNameLabel, RuleNameAfterTo, RuleNameNearDOB, RuleNameScan}
	rules := New(nil).Rules()
	if len(rules) != len(want) {
		t.Fatalf("got %d rules", len(rules))
	}
	for i, r := range rules {
		if r.Name != want[i] {
			t.Errorf("rule %d = %s, want %s", i, r.Name, want[i])
		}
	}
}
