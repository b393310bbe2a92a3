package capture

import (
	"encoding/json"
	"fmt"
)

// JavaScript evaluated inside the isolated context while applying a CSS
// selection. Kept as one self-contained expression per concern so every
// evaluation call site can catch and degrade independently.

// detectLoginJS is true when the page looks like a login form.
const detectLoginJS = `!!document.querySelector('input[type="password"]')`

// scrollJS scrolls the page to an absolute offset.
func scrollJS(x, y float64) string {
	return fmt.Sprintf(`window.scrollTo(%g, %g); true`, x, y)
}

// probeJS counts how many of the stored selectors still resolve.
func probeJS(selectors []string) string {
	encoded, _ := json.Marshal(selectors)
	return fmt.Sprintf(`
(function(sels) {
	var hits = 0;
	for (var i = 0; i < sels.length; i++) {
		try {
			if (document.querySelector(sels[i])) hits++;
		} catch (e) {}
	}
	return hits;
})(%s)`, encoded)
}

// isolateJS hides everything under body, then re-reveals the matched
// elements with their descendants, and separately walks each matched
// element's ancestor chain up to (but not including) body, since
// descendant rules cannot restore ancestor visibility. Returns the minimum top
// offset of the matched elements in document coordinates, and scrolls
// the page so that offset sits scrollMargin px from the viewport top
// (tall invisible ancestors would otherwise leave the content below a
// blank band).
func isolateJS(selectors []string, scrollMargin float64) string {
	encoded, _ := json.Marshal(selectors)
	return fmt.Sprintf(`
(function(sels, margin) {
	var matched = [];
	for (var i = 0; i < sels.length; i++) {
		try {
			var el = document.querySelector(sels[i]);
			if (el) matched.push(el);
		} catch (e) {}
	}
	if (matched.length === 0) return -1;

	var all = document.body.getElementsByTagName('*');
	for (var i = 0; i < all.length; i++) {
		all[i].style.setProperty('visibility', 'hidden', 'important');
	}

	function reveal(el) {
		el.style.setProperty('visibility', 'visible', 'important');
	}

	var minTop = Infinity;
	for (var i = 0; i < matched.length; i++) {
		var el = matched[i];
		reveal(el);
		var kids = el.getElementsByTagName('*');
		for (var k = 0; k < kids.length; k++) reveal(kids[k]);

		var anc = el.parentElement;
		while (anc && anc !== document.body) {
			reveal(anc);
			anc = anc.parentElement;
		}

		var top = el.getBoundingClientRect().top + window.scrollY;
		if (top < minTop) minTop = top;
	}

	var target = Math.max(0, minTop - margin);
	window.scrollTo(0, target);
	return minTop;
})(%s, %g)`, encoded, scrollMargin)
}
