package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

type kernelArg struct {
	key      string
	value    string
	hasValue bool
}

func (a kernelArg) String() string {
	if !a.hasValue {
		return a.key
	}
	return a.key + "=" + a.value
}

// KernelArgs is an ordered kernel command line. Keys may repeat.
type KernelArgs struct {
	args []kernelArg
}

// ParseKernelArgs splits a command line on whitespace, keeping double
// quoted sections together.
func ParseKernelArgs(cmdline string) KernelArgs {
	var out KernelArgs
	for _, token := range splitCmdline(cmdline) {
		out.args = append(out.args, splitKernelArg(token))
	}
	return out
}

// NewKernelArgs builds a list from already split arguments.
func NewKernelArgs(args []string) KernelArgs {
	var out KernelArgs
	out.Append(args)
	return out
}

func splitCmdline(cmdline string) []string {
	var tokens []string
	var current strings.Builder
	quoted := false
	for _, r := range cmdline {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func splitKernelArg(token string) kernelArg {
	key, value, hasValue := strings.Cut(token, "=")
	return kernelArg{key: key, value: value, hasValue: hasValue}
}

func (k *KernelArgs) Append(args []string) {
	for _, arg := range args {
		if strings.TrimSpace(arg) == "" {
			continue
		}
		k.args = append(k.args, splitKernelArg(arg))
	}
}

func (k *KernelArgs) indexesOf(key string) []int {
	var idx []int
	for i, arg := range k.args {
		if arg.key == key {
			idx = append(idx, i)
		}
	}
	return idx
}

// Delete removes key=value exactly, or a bare key holding a single value.
func (k *KernelArgs) Delete(arg string) error {
	target := splitKernelArg(arg)
	matches := k.indexesOf(target.key)
	if len(matches) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("no karg '%s' found", arg))
	}
	if !target.hasValue {
		if len(matches) > 1 {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("multiple values for key '%s' found", target.key))
		}
		k.removeAt(matches[0])
		return nil
	}
	for _, i := range matches {
		if k.args[i].hasValue && k.args[i].value == target.value {
			k.removeAt(i)
			return nil
		}
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("no karg '%s' found", arg))
}

// Replace accepts key=value, which rewrites the single value of key, or
// key=old=new, which rewrites one specific value.
func (k *KernelArgs) Replace(arg string) error {
	target := splitKernelArg(arg)
	if !target.hasValue {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("replacement '%s' needs a value", arg))
	}
	matches := k.indexesOf(target.key)
	if len(matches) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("no key '%s' found", target.key))
	}
	oldValue, newValue, specific := strings.Cut(target.value, "=")
	if !specific {
		if len(matches) > 1 {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("multiple values for key '%s' found", target.key))
		}
		k.args[matches[0]] = kernelArg{key: target.key, value: target.value, hasValue: true}
		return nil
	}
	for _, i := range matches {
		if k.args[i].hasValue && k.args[i].value == oldValue {
			k.args[i].value = newValue
			return nil
		}
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("no karg '%s=%s' found", target.key, oldValue))
}

func (k *KernelArgs) removeAt(i int) {
	k.args = append(k.args[:i], k.args[i+1:]...)
}

func (k KernelArgs) Strings() []string {
	out := make([]string, 0, len(k.args))
	for _, arg := range k.args {
		out = append(out, arg.String())
	}
	return out
}

func (k KernelArgs) String() string {
	return strings.Join(k.Strings(), " ")
}

// KernelArgEdit is one kernel-argument request: deletions win over
// replacements and additions.
type KernelArgEdit struct {
	Existing string
	Append   []string
	Replace  []string
	Delete   []string
}

// Apply produces the resulting argument list.
func (e KernelArgEdit) Apply() ([]string, error) {
	args := ParseKernelArgs(e.Existing)
	if len(e.Delete) > 0 {
		for _, arg := range e.Delete {
			if err := args.Delete(arg); err != nil {
				return nil, err
			}
		}
		return args.Strings(), nil
	}
	for _, arg := range e.Replace {
		if err := args.Replace(arg); err != nil {
			return nil, err
		}
	}
	args.Append(e.Append)
	return args.Strings(), nil
}
