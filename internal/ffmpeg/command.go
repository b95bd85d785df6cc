package ffmpeg

// CommandBuilder assembles an argument vector with a fluent API. Argument
// order is fixed by construction order, so identical build sequences
// yield identical vectors.
type CommandBuilder struct {
	globalArgs []string
	inputs     []inputSpec
	filter     string
	maps       []string
	outputArgs []string
	output     string
}

type inputSpec struct {
	args []string
	url  string
}

// NewCommandBuilder creates an empty builder.
func NewCommandBuilder() *CommandBuilder {
	return &CommandBuilder{}
}

// Global appends global (pre-input) arguments.
func (b *CommandBuilder) Global(args ...string) *CommandBuilder {
	b.globalArgs = append(b.globalArgs, args...)
	return b
}

// Input appends one input with its per-input arguments.
func (b *CommandBuilder) Input(url string, args ...string) *CommandBuilder {
	b.inputs = append(b.inputs, inputSpec{args: args, url: url})
	return b
}

// FilterComplex sets the -filter_complex graph.
func (b *CommandBuilder) FilterComplex(graph string) *CommandBuilder {
	b.filter = graph
	return b
}

// Map appends a -map selector, e.g. "[v]".
func (b *CommandBuilder) Map(label string) *CommandBuilder {
	b.maps = append(b.maps, label)
	return b
}

// OutputArgs appends output-side arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(dest string) *CommandBuilder {
	b.output = dest
	return b
}

// Args returns the complete argument vector.
func (b *CommandBuilder) Args() []string {
	var args []string
	args = append(args, b.globalArgs...)
	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.url)
	}
	if b.filter != "" {
		args = append(args, "-filter_complex", b.filter)
	}
	for _, m := range b.maps {
		args = append(args, "-map", m)
	}
	args = append(args, b.outputArgs...)
	if b.output != "" {
		args = append(args, b.output)
	}
	return args
}
