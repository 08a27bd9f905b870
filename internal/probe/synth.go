package probe

// syntheticValues are the fill-in values per field intent. They are valid by
// construction so a working form accepts them.
var syntheticValues = map[string]string{
	"email":    "student@example.com",
	"password": "Gq-test-2025!",
	"name":     "Test Student",
	"phone":    "+15555550100",
	"search":   "test",
	"message":  "automated functional check",
	"date":     "2025-01-15",
	"generic":  "test value",
}

func syntheticValue(intent string) string {
	if v, ok := syntheticValues[intent]; ok {
		return v
	}
	return syntheticValues["generic"]
}
