package codegen

// GenerateFileExistsError is returned when a generated file's IfExists
// is IfExistsError and something already occupies its target path.
type GenerateFileExistsError struct {
	Path string
}

func (e GenerateFileExistsError) Error() string {
	return "cannot generate file: " + e.Path + " already exists"
}
