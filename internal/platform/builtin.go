package platform

// Builtin returns the platform table used when a project declares none.
func Builtin() Table {
	return Table{
		{
			Name:        "Linux",
			Description: "Linux (x86_64, glibc, ELF)",
			Variables: map[string]string{
				KeyArchType:     "x86_64",
				KeyArch:         "x86_64",
				KeyOSType:       "POSIX",
				KeyOS:           "Linux",
				KeyOSKernel:     "Linux",
				KeyLibC:         "glibc",
				KeyObjectFormat: "ELF",
				KeySupport:      "hosted",
			},
		},
		{
			Name:        "Windows",
			Description: "Windows (x86_64, PE)",
			Variables: map[string]string{
				KeyVendor:       "pc",
				KeyArchType:     "x86_64",
				KeyArch:         "x86_64",
				KeyOSType:       "Windows",
				KeyOS:           "Windows",
				KeyOSKernel:     "NT",
				KeyObjectFormat: "PE",
				KeySupport:      "hosted",
			},
		},
		{
			Name:        CustomName,
			Description: "Custom platform (TARGET_* variables supplied on the command line)",
		},
	}
}
