package elog

// Attribute vocabularies of the SwissFEL commissioning logbook. Filter
// values are matched case-sensitively by the server.

var Categories = []string{
	"Info",
	"Problem",
	"Pikett",
	"Access",
	"Measurement summary",
	"Shift summary",
	"Tipps & Tricks",
	"Überbrückung",
	"Schicht-Auftrag",
	"RC exchange minutes",
	"Weekly reference settings",
	"Schicht-Übergabe",
	"DCM minutes",
	"Laser- & Gun-Performance Routine",
	"Seed laser operation",
}

var Systems = []string{
	"Beamdynamics",
	"Controls",
	"Diagnostics",
	"Electric supply",
	"Feedbacks",
	"Insertion-devices",
	"Laser",
	"Magnet Power Supplies",
	"Operation",
	"Photonics",
	"PLC",
	"RF",
	"Safety",
	"Timing & Sync",
	"Vacuum",
	"Water cooling & Ventilation",
	"Other",
	"Unknown",
}

var Domains = []string{
	"Injector",
	"Linac1",
	"Linac2",
	"Linac3",
	"Aramis",
	"Aramis Beamlines",
	"Athos",
	"Athos Beamlines",
	"Global",
}

func ValidCategory(v string) bool { return contains(Categories, v) }
func ValidSystem(v string) bool   { return contains(Systems, v) }
func ValidDomain(v string) bool   { return contains(Domains, v) }

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
