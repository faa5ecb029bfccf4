package tags

import (
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// EntityTable maps entity names to numeric character references.
type EntityTable map[string]Raw

var entityNames = []string{
	"nbsp", "iexcl", "cent", "pound", "curren", "yen", "brvbar", "sect",
	"uml", "copy", "ordf", "laquo", "not", "shy", "reg", "macr", "deg",
	"plusmn", "sup2", "sup3", "acute", "micro", "para", "middot", "cedil",
	"sup1", "ordm", "raquo", "frac14", "frac12", "frac34", "iquest",
	"Agrave", "Aacute", "Acirc", "Atilde", "Auml", "Aring", "AElig",
	"Ccedil", "Egrave", "Eacute", "Ecirc", "Euml", "Igrave", "Iacute",
	"Icirc", "Iuml", "ETH", "Ntilde", "Ograve", "Oacute", "Ocirc", "Otilde",
	"Ouml", "times", "Oslash", "Ugrave", "Uacute", "Ucirc", "Uuml", "Yacute",
	"THORN", "szlig", "agrave", "aacute", "acirc", "atilde", "auml", "aring",
	"aelig", "ccedil", "egrave", "eacute", "ecirc", "euml", "igrave",
	"iacute", "icirc", "iuml", "eth", "ntilde", "ograve", "oacute", "ocirc",
	"otilde", "ouml", "divide", "oslash", "ugrave", "uacute", "ucirc",
	"uuml", "yacute", "thorn", "yuml",
	"quot", "amp", "lt", "gt", "apos", "OElig", "oelig", "Scaron", "scaron",
	"Yuml", "circ", "tilde", "ensp", "emsp", "thinsp", "zwnj", "zwj", "lrm",
	"rlm", "ndash", "mdash", "lsquo", "rsquo", "sbquo", "ldquo", "rdquo",
	"bdquo", "dagger", "Dagger", "permil", "lsaquo", "rsaquo", "euro",
	"fnof", "Alpha", "Beta", "Gamma", "Delta", "Epsilon", "Zeta", "Eta",
	"Theta", "Iota", "Kappa", "Lambda", "Mu", "Nu", "Xi", "Omicron", "Pi",
	"Rho", "Sigma", "Tau", "Upsilon", "Phi", "Chi", "Psi", "Omega", "alpha",
	"beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta", "iota",
	"kappa", "lambda", "mu", "nu", "xi", "omicron", "pi", "rho", "sigmaf",
	"sigma", "tau", "upsilon", "phi", "chi", "psi", "omega", "thetasym",
	"upsih", "piv", "bull", "hellip", "prime", "Prime", "oline", "frasl",
	"weierp", "image", "real", "trade", "alefsym", "larr", "uarr", "rarr",
	"darr", "harr", "crarr", "lArr", "uArr", "rArr", "dArr", "hArr",
	"forall", "part", "exist", "empty", "nabla", "isin", "notin", "ni",
	"prod", "sum", "minus", "lowast", "radic", "prop", "infin", "ang", "and",
	"or", "cap", "cup", "int", "there4", "sim", "cong", "asymp", "ne",
	"equiv", "le", "ge", "sub", "sup", "nsub", "sube", "supe", "oplus",
	"otimes", "perp", "sdot", "lceil", "rceil", "lfloor", "rfloor", "lang",
	"rang", "loz", "spades", "clubs", "hearts", "diams",
}

// Entities is the HTML 4 named entity set rendered as numeric references.
var Entities = newEntityTable(entityNames)

func newEntityTable(names []string) EntityTable {
	t := make(EntityTable, len(names))
	for _, name := range names {
		ref := "&" + name + ";"
		decoded := html.UnescapeString(ref)
		if decoded == ref {
			continue
		}
		r, _ := utf8.DecodeRuneInString(decoded)
		t[name] = Raw("&#" + strconv.Itoa(int(r)) + ";")
	}
	return t
}

// Resolve returns the reference for name.
func (e EntityTable) Resolve(name string) (any, error) {
	if r, ok := e[name]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("unknown entity %q", name)
}

// Map returns the table as scope bindings.
func (e EntityTable) Map() map[string]any {
	out := make(map[string]any, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Names returns the sorted entity names.
func (e EntityTable) Names() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
