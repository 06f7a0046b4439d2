package server

import (
	"context"

	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/extensions"
	"github.com/x402-labs/x402-go/schemes"
)

func extensionRequestContext(method, resourceURL string) extensions.RequestContext {
	return extensions.RequestContext{Method: method, URL: resourceURL}
}

// buildPaymentRequired assembles the PaymentRequired body for route,
// per spec.md §4.4 step 2: one PaymentRequirements per PaymentOption via
// the option's scheme's buildRequirement/enhanceRequirement, plus
// resource info and any declared extensions.
func (g *Gateway) buildPaymentRequired(ctx context.Context, route *Route, method, resourceURL string) *x402.PaymentRequired {
	supported := g.supportedIndex(ctx)

	pr := &x402.PaymentRequired{
		X402Version: g.version,
		Resource: &x402.ResourceInfo{
			URL:         resourceURL,
			Description: route.Config.Description,
			MimeType:    route.Config.MimeType,
		},
	}

	timeout := route.Config.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}

	for _, opt := range route.Config.Accepts {
		serverScheme, ok := g.registry.Server(opt.Scheme, opt.Network)
		if !ok {
			g.logger.Warn("no server scheme registered for payment option", "scheme", opt.Scheme, "network", opt.Network)
			continue
		}
		amount, err := serverScheme.ParsePrice(opt.Price, opt.Network)
		if err != nil {
			g.logger.Warn("failed to parse price for payment option", "scheme", opt.Scheme, "network", opt.Network, "error", err)
			continue
		}
		if len(opt.Extra) > 0 {
			if amount.Extra == nil {
				amount.Extra = map[string]interface{}{}
			}
			for k, v := range opt.Extra {
				amount.Extra[k] = v
			}
		}
		req := serverScheme.BuildRequirement(opt.PayTo, amount, opt.Network, timeout)
		req = serverScheme.EnhanceRequirement(req, supported[schemes.Key{Scheme: opt.Scheme, Network: opt.Network}])
		pr.Accepts = append(pr.Accepts, req)
	}

	if len(route.Config.Extensions) > 0 {
		pr.Extensions = map[string]interface{}{}
		for _, binding := range route.Config.Extensions {
			decl := binding.Extension.Declare(binding.Required)
			if decl == nil {
				continue
			}
			decl = binding.Extension.Enrich(decl, extensionRequestContext(method, resourceURL))
			if decl != nil {
				pr.Extensions[binding.Extension.Key()] = decl
			}
		}
	}

	return pr
}

// supportedIndex fetches the facilitator's supported kinds once per
// request and indexes them by (scheme, network) for EnhanceRequirement.
func (g *Gateway) supportedIndex(ctx context.Context) map[schemes.Key]x402.SupportedKind {
	index := map[schemes.Key]x402.SupportedKind{}
	kinds, err := g.facilitator.GetSupported(ctx)
	if err != nil {
		g.logger.Warn("failed to fetch facilitator supported kinds", "error", err)
		return index
	}
	for _, k := range kinds {
		index[schemes.Key{Scheme: k.Scheme, Network: k.Network}] = k
	}
	return index
}

// matchRequirement finds the accepted PaymentRequirements matching the
// payload's declared (scheme, network), per spec.md §4.4 step 5.
func matchRequirement(payload *x402.PaymentPayload, accepts []x402.PaymentRequirements) (x402.PaymentRequirements, bool) {
	for _, req := range accepts {
		if req.Scheme == payload.Accepted.Scheme && req.Network == payload.Accepted.Network {
			return req, true
		}
	}
	return x402.PaymentRequirements{}, false
}
