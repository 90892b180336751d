package functions

import (
	"github.com/hashicorp/go-cty-funcs/cidr"
	"github.com/hashicorp/go-cty-funcs/crypto"
	"github.com/hashicorp/go-cty-funcs/encoding"
	"github.com/hashicorp/go-cty-funcs/filesystem"
	"github.com/hashicorp/go-cty-funcs/uuid"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// GetStandardLibraryFunctions returns the cty standard library together with
// the go-cty-funcs extensions, keyed by the names used in configuration.
func GetStandardLibraryFunctions() map[string]function.Function {
	funcs := make(map[string]function.Function)

	for _, group := range []map[string]function.Function{
		stringFunctions,
		numericFunctions,
		collectionFunctions,
		encodingFunctions,
		conversionFunctions(),
		networkFunctions,
		cryptoFunctions,
		filesystemFunctions,
	} {
		for name, fn := range group {
			funcs[name] = fn
		}
	}

	funcs["formatdate"] = stdlib.FormatDateFunc
	funcs["timeadd"] = stdlib.TimeAddFunc
	funcs["timestamp"] = TimestampFunc
	funcs["typeof"] = TypeOfFunc
	funcs["uuidv4"] = uuid.V4Func
	funcs["uuidv5"] = uuid.V5Func

	return funcs
}

var stringFunctions = map[string]function.Function{
	"chomp":     stdlib.ChompFunc,
	"format":    stdlib.FormatFunc,
	"indent":    stdlib.IndentFunc,
	"join":      stdlib.JoinFunc,
	"lower":     stdlib.LowerFunc,
	"regex":     stdlib.RegexFunc,
	"regexall":  stdlib.RegexAllFunc,
	"replace":   stdlib.ReplaceFunc,
	"split":     stdlib.SplitFunc,
	"strlen":    stdlib.StrlenFunc,
	"substr":    stdlib.SubstrFunc,
	"title":     stdlib.TitleFunc,
	"trim":      stdlib.TrimFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"upper":     stdlib.UpperFunc,
}

var numericFunctions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"log":    stdlib.LogFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"pow":    stdlib.PowFunc,
	"signum": stdlib.SignumFunc,
}

var collectionFunctions = map[string]function.Function{
	"coalesce":     stdlib.CoalesceFunc,
	"coalescelist": stdlib.CoalesceListFunc,
	"compact":      stdlib.CompactFunc,
	"contains":     stdlib.ContainsFunc,
	"distinct":     stdlib.DistinctFunc,
	"element":      stdlib.ElementFunc,
	"flatten":      stdlib.FlattenFunc,
	"keys":         stdlib.KeysFunc,
	"length":       stdlib.LengthFunc,
	"lookup":       stdlib.LookupFunc,
	"merge":        stdlib.MergeFunc,
	"range":        stdlib.RangeFunc,
	"reverse":      stdlib.ReverseListFunc,
	"slice":        stdlib.SliceFunc,
	"sort":         stdlib.SortFunc,
	"values":       stdlib.ValuesFunc,
	"zipmap":       stdlib.ZipmapFunc,
}

var encodingFunctions = map[string]function.Function{
	"base64decode": encoding.Base64DecodeFunc,
	"base64encode": encoding.Base64EncodeFunc,
	"csvdecode":    stdlib.CSVDecodeFunc,
	"jsondecode":   stdlib.JSONDecodeFunc,
	"jsonencode":   stdlib.JSONEncodeFunc,
	"urlencode":    encoding.URLEncodeFunc,
}

func conversionFunctions() map[string]function.Function {
	return map[string]function.Function{
		"tobool":   stdlib.MakeToFunc(cty.Bool),
		"tolist":   stdlib.MakeToFunc(cty.List(cty.DynamicPseudoType)),
		"tomap":    stdlib.MakeToFunc(cty.Map(cty.DynamicPseudoType)),
		"tonumber": stdlib.MakeToFunc(cty.Number),
		"toset":    stdlib.MakeToFunc(cty.Set(cty.DynamicPseudoType)),
		"tostring": stdlib.MakeToFunc(cty.String),
	}
}

var networkFunctions = map[string]function.Function{
	"cidrhost":    cidr.HostFunc,
	"cidrnetmask": cidr.NetmaskFunc,
	"cidrsubnet":  cidr.SubnetFunc,
	"cidrsubnets": cidr.SubnetsFunc,
}

var cryptoFunctions = map[string]function.Function{
	"bcrypt":     crypto.BcryptFunc,
	"md5":        crypto.Md5Func,
	"rsadecrypt": crypto.RsaDecryptFunc,
	"sha1":       crypto.Sha1Func,
	"sha256":     crypto.Sha256Func,
	"sha512":     crypto.Sha512Func,
}

var filesystemFunctions = map[string]function.Function{
	"abspath":    filesystem.AbsPathFunc,
	"basename":   filesystem.BasenameFunc,
	"dirname":    filesystem.DirnameFunc,
	"file":       filesystem.MakeFileFunc("", false),
	"pathexpand": filesystem.PathExpandFunc,
}
