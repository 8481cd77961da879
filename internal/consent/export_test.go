package consent

// File returns the path of the consent file of source.
func (cm Manager) File(source string) string {
	return cm.getFile(source)
}
