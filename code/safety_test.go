package code

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticValidatorAllowsAnalysisCode(t *testing.T) {
	validator := NewStaticValidator(nil)

	safe := []string{
		"",
		"   \n\t",
		"import pandas as pd\ndf = pd.read_csv('sales.csv')\nprint(df.describe())",
		"result = df.groupby('region')['margin'].mean()",
		`x = "os"` + "\ny = x.upper()",
		"# import os in a comment is fine\nvalue = 1",
	}
	for _, code := range safe {
		assert.True(t, validator.IsSafe(code), "expected safe: %q", code)
	}
}

func TestStaticValidatorBlocksForbiddenCode(t *testing.T) {
	validator := NewStaticValidator(nil)

	unsafe := map[string]string{
		"import":        "import os",
		"import alias":  "import subprocess as sp",
		"from import":   "from os import path",
		"dotted import": "import os.path",
		"bare eval":     "eval('1+1')",
		"bare open":     "data = open('file.txt').read()",
		"dunder":        "x.__class__.__bases__",
		"syntax error":  "def broken(:\n    pass",
		"unterminated":  `s = "never closed`,
	}
	for name, code := range unsafe {
		assert.False(t, validator.IsSafe(code), "expected unsafe (%s): %q", name, code)
	}
}

func TestStaticValidatorIdempotent(t *testing.T) {
	validator := NewStaticValidator(nil)

	inputs := []string{"import pandas", "import os", "", "eval('x')"}
	for _, code := range inputs {
		first := validator.IsSafe(code)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, validator.IsSafe(code))
		}
	}
}

func TestStaticValidatorCustomDenylist(t *testing.T) {
	validator := NewStaticValidator([]string{"requests"})

	assert.False(t, validator.IsSafe("import requests"))
	assert.True(t, validator.IsSafe("import os"), "default denylist must not apply")
}
