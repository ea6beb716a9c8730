package pipeline

// Binding attaches a named buffer to a kernel parameter
type Binding struct {
	Param  string
	Buffer string
}

// IntParam is a scalar int kernel argument
type IntParam struct {
	Name  string
	Value int32
}

// FloatParam is a scalar float kernel argument
type FloatParam struct {
	Name  string
	Value float32
}

// Kernel describes one per-pixel kernel. The shape (bindings and parameter
// names) is fixed once the pipeline is built; parameter values may change
// between dispatches.
type Kernel struct {
	Name string

	// Body is appended to the synthesized preamble, after the output
	// placeholders. It may use x, y, idx, width, height and every
	// parameter name.
	Body string

	// Code is a complete kernel definition. When set it replaces the
	// synthesized source entirely.
	Code string

	InBuffers   []Binding
	OutBuffers  []Binding
	ParamsInt   []IntParam
	ParamsFloat []FloatParam
}

// SetInBuffer binds buffer to a read-only kernel parameter
func (k *Kernel) SetInBuffer(param, buffer string) {
	k.InBuffers = setBinding(k.InBuffers, param, buffer)
}

// SetOutBuffer binds buffer to a writable kernel parameter
func (k *Kernel) SetOutBuffer(param, buffer string) {
	k.OutBuffers = setBinding(k.OutBuffers, param, buffer)
}

func setBinding(bindings []Binding, param, buffer string) []Binding {
	for i := range bindings {
		if bindings[i].Param == param {
			bindings[i].Buffer = buffer
			return bindings
		}
	}
	return append(bindings, Binding{Param: param, Buffer: buffer})
}

// SetParamInt declares an int parameter or updates its value
func (k *Kernel) SetParamInt(name string, value int32) {
	for i := range k.ParamsInt {
		if k.ParamsInt[i].Name == name {
			k.ParamsInt[i].Value = value
			return
		}
	}
	k.ParamsInt = append(k.ParamsInt, IntParam{Name: name, Value: value})
}

// SetParamFloat declares a float parameter or updates its value
func (k *Kernel) SetParamFloat(name string, value float32) {
	for i := range k.ParamsFloat {
		if k.ParamsFloat[i].Name == name {
			k.ParamsFloat[i].Value = value
			return
		}
	}
	k.ParamsFloat = append(k.ParamsFloat, FloatParam{Name: name, Value: value})
}
