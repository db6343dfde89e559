package phone

// CountryCode is the calling code of the national numbering scheme.
const CountryCode = "92"

// Region tag for numbers normalized under the national scheme.
const Region = "PK"

// International is the carrier tag for numbers accepted by the generic fallback.
const International = "International"

// carrierPrefixes maps the 3-digit mobile prefix (after the trunk 0 or the
// country code) to its network operator.
var carrierPrefixes = map[string]string{
	"300": "Jazz", "301": "Jazz", "302": "Jazz", "303": "Jazz", "304": "Jazz",
	"305": "Jazz", "306": "Jazz", "307": "Jazz", "308": "Jazz", "309": "Jazz",

	"310": "Zong", "311": "Zong", "312": "Zong", "313": "Zong", "314": "Zong",
	"315": "Zong", "316": "Zong", "317": "Zong", "318": "Zong", "319": "Zong",

	// Former Warid range, now operated by Jazz.
	"320": "Jazz", "321": "Jazz", "322": "Jazz", "323": "Jazz", "324": "Jazz",
	"325": "Jazz", "326": "Jazz", "327": "Jazz", "328": "Jazz", "329": "Jazz",

	"330": "Ufone", "331": "Ufone", "332": "Ufone", "333": "Ufone", "334": "Ufone",
	"335": "Ufone", "336": "Ufone", "337": "Ufone", "338": "Ufone", "339": "Ufone",

	"340": "Telenor", "341": "Telenor", "342": "Telenor", "343": "Telenor", "344": "Telenor",
	"345": "Telenor", "346": "Telenor", "347": "Telenor", "348": "Telenor", "349": "Telenor",

	"355": "SCOM",
}

// Carrier returns the operator for a 3-digit mobile prefix.
func Carrier(prefix string) (string, bool) {
	c, ok := carrierPrefixes[prefix]
	return c, ok
}
